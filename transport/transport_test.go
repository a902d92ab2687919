package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fitsession/fitsession-go/transport"
)

func TestDoEncodesJSONAndSetsHeaders(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		capturedBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := transport.New(server.URL)
	resp, err := client.Do(context.Background(), transport.Request{
		Method: "POST",
		Path:   "/api/system/auth/login/",
		Body:   map[string]string{"email": "user@example.com"},
	})
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)

	require.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	require.Equal(t, "application/json", captured.Header.Get("Accept"))
	require.NotEmpty(t, captured.Header.Get("X-Request-ID"))
	require.JSONEq(t, `{"email":"user@example.com"}`, string(capturedBody))

	var payload struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, resp.Decode(&payload))
	require.True(t, payload.OK)
}

func TestDoDecodesRemoteErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid credentials."}`))
	}))
	defer server.Close()

	client := transport.New(server.URL)
	resp, err := client.Do(context.Background(), transport.Request{Method: "POST", Path: "/x/"})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 401, resp.Status)

	require.True(t, transport.IsStatus(err, 401))
	var remote *transport.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "Invalid credentials.", remote.Message())
}

func TestDoDecodesFieldErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"email":["already in use"],"confirm_password":["does not match"]}`))
	}))
	defer server.Close()

	client := transport.New(server.URL)
	_, err := client.Do(context.Background(), transport.Request{Method: "POST", Path: "/x/"})

	var remote *transport.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, []string{"already in use"}, remote.Fields["email"])
	require.Equal(t, "Confirm Password: does not match\nEmail: already in use", remote.Message())
}

func TestDoNonJSONErrorBodyFallsBackToStatusText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := transport.New(server.URL)
	_, err := client.Do(context.Background(), transport.Request{Method: "GET", Path: "/x/"})

	var remote *transport.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "Bad Gateway", remote.Message())
}

func TestDoTransportFailureWrapsErrNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Nothing listening any more.

	client := transport.New(server.URL)
	_, err := client.Do(context.Background(), transport.Request{Method: "GET", Path: "/x/"})
	require.ErrorIs(t, err, transport.ErrNetwork)
}

func TestDoMultipartForm(t *testing.T) {
	var fields url.Values
	var fileContent []byte
	var fileName string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = r.MultipartForm.Value

		file, header, err := r.FormFile("id_proof")
		require.NoError(t, err)
		defer file.Close()
		fileName = header.Filename
		fileContent, _ = io.ReadAll(file)

		_, _ = w.Write([]byte(`{"detail":"ok","status":true}`))
	}))
	defer server.Close()

	client := transport.New(server.URL)
	resp, err := client.Do(context.Background(), transport.Request{
		Method: "POST",
		Path:   "/api/system/trainer/register/",
		Form: &transport.Form{
			Fields: url.Values{
				"full_name":              {"Jane Coach"},
				"expertise_categories[]": {"yoga", "strength"},
			},
			Files: []transport.FilePart{{
				Field:       "id_proof",
				Filename:    "passport.jpg",
				ContentType: "image/jpeg",
				Content:     []byte("jpeg-bytes"),
			}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)

	require.Equal(t, "Jane Coach", fields.Get("full_name"))
	require.Equal(t, []string{"yoga", "strength"}, fields["expertise_categories[]"])
	require.Equal(t, "passport.jpg", fileName)
	require.Equal(t, []byte("jpeg-bytes"), fileContent)
}

func TestRemoteErrorMessagePriorities(t *testing.T) {
	withDetail := &transport.RemoteError{Status: 400, Detail: "detail wins", Fields: map[string][]string{"email": {"bad"}}}
	require.Equal(t, "detail wins", withDetail.Message())

	statusOnly := &transport.RemoteError{Status: 503}
	require.Equal(t, "Service Unavailable", statusOnly.Message())
}
