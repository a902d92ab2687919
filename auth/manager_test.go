package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fitsession/fitsession-go/auth"
	"github.com/fitsession/fitsession-go/credstore"
	"github.com/fitsession/fitsession-go/credstore/kvfake"
	"github.com/fitsession/fitsession-go/pipeline"
	"github.com/fitsession/fitsession-go/transport"
	"github.com/fitsession/fitsession-go/users"
)

type testFixture struct {
	server  *httptest.Server
	mux     *http.ServeMux
	kv      *kvfake.FakeKV
	store   *credstore.Store
	manager *auth.Manager
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		mux: http.NewServeMux(),
		kv:  kvfake.New(),
	}
	f.store = credstore.New(f.kv)
	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)

	pipe, err := pipeline.New(transport.New(f.server.URL), f.store)
	require.NoError(t, err)

	f.manager, err = auth.NewManager(pipe, f.store)
	require.NoError(t, err)
	return f
}

func (f *testFixture) serveLogin(t *testing.T, capture *map[string]string) {
	f.mux.HandleFunc(transport.EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if capture != nil {
			*capture = body
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tokens": map[string]string{"access": "a1", "refresh": "r1"},
			"user": map[string]any{
				"id":    "user-1",
				"email": body["email"],
				"role":  "client",
			},
		})
	})
}

func seedSession(t *testing.T, f *testFixture) {
	t.Helper()
	err := f.store.SaveSession(context.Background(),
		credstore.TokenPair{Access: "a1", Refresh: "r1"},
		&users.User{ID: "user-1", Email: "john.doe@example.com", Role: users.RoleClient},
		"")
	require.NoError(t, err)
}

func TestStateStartsUnknown(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, auth.StateUnknown, f.manager.State().State)
}

func TestHydrateWithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.Hydrate(context.Background())

	state := f.manager.State()
	require.Equal(t, auth.StateUnauthenticated, state.State)
	require.False(t, state.Authenticated())
}

func TestHydrateWithPersistedSession(t *testing.T) {
	f := setupTestFixture(t)
	seedSession(t, f)

	f.manager.Hydrate(context.Background())

	state := f.manager.State()
	require.True(t, state.Authenticated())
	require.Equal(t, "a1", state.AccessToken)
	require.Equal(t, "john.doe@example.com", state.User.Email)
}

func TestLoginNormalizesAndPersists(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	var sent map[string]string
	f.serveLogin(t, &sent)

	var transitions []auth.State
	f.manager.OnChange(func(s auth.AuthState) {
		transitions = append(transitions, s.State)
	})

	user, err := f.manager.Login(ctx, "  USER@Example.com ", " secret ", true)
	require.NoError(t, err)
	require.Equal(t, "user@example.com", user.Email)

	require.Equal(t, "user@example.com", sent["email"])
	require.Equal(t, "secret", sent["password"])

	state := f.manager.State()
	require.True(t, state.Authenticated())
	require.Equal(t, "a1", state.AccessToken)
	require.Equal(t, []auth.State{auth.StateAuthenticated}, transitions)

	session, err := f.store.LoadSession(ctx)
	require.NoError(t, err)
	require.False(t, session.Empty())
	refresh, err := f.store.RefreshToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "r1", refresh)

	emails, err := f.manager.RememberedEmails(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"user@example.com"}, emails)
}

func TestLoginWithoutRememberMe(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.serveLogin(t, nil)

	_, err := f.manager.Login(ctx, "user@example.com", "secret", false)
	require.NoError(t, err)

	emails, err := f.manager.RememberedEmails(ctx)
	require.NoError(t, err)
	require.Empty(t, emails)
}

func TestLoginRejectionPropagatesFieldErrors(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.mux.HandleFunc(transport.EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid credentials."}`))
	})

	_, err := f.manager.Login(ctx, "user@example.com", "wrong", true)
	require.Error(t, err)
	require.True(t, auth.IsInvalidCredentials(err))

	var remote *transport.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "Invalid credentials.", remote.Message())

	// Nothing persisted on a rejected login.
	session, loadErr := f.store.LoadSession(ctx)
	require.NoError(t, loadErr)
	require.True(t, session.Empty())
	require.False(t, f.manager.State().Authenticated())
}

func TestGoogleLoginAlwaysRemembersEmail(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.mux.HandleFunc(transport.EndpointGoogleLogin, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tokens": map[string]string{"access": "a1", "refresh": "r1"},
			"user":   map[string]any{"id": "user-2", "email": "g.user@example.com", "role": "client"},
		})
	})

	user, err := f.manager.GoogleLogin(ctx, "google-id-token")
	require.NoError(t, err)
	require.Equal(t, "g.user@example.com", user.Email)
	require.True(t, f.manager.State().Authenticated())

	emails, err := f.manager.RememberedEmails(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"g.user@example.com"}, emails)
}

func TestLogoutClearsLocallyEvenWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	seedSession(t, f)
	f.manager.Hydrate(ctx)

	f.mux.HandleFunc(transport.EndpointLogout, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	require.NoError(t, f.manager.Logout(ctx))

	require.Equal(t, auth.StateUnauthenticated, f.manager.State().State)
	session, err := f.store.LoadSession(ctx)
	require.NoError(t, err)
	require.True(t, session.Empty())
}

func TestLogoutWithoutTokenSkipsRemoteCall(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.manager.Hydrate(ctx) // resolves to unauthenticated

	var remoteCalls atomic.Int32
	f.mux.HandleFunc(transport.EndpointLogout, func(w http.ResponseWriter, r *http.Request) {
		remoteCalls.Add(1)
	})

	require.NoError(t, f.manager.Logout(ctx))
	require.Zero(t, remoteCalls.Load())
}

func TestGetProfileRefreshesCache(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	seedSession(t, f)
	f.manager.Hydrate(ctx)

	f.mux.HandleFunc(transport.EndpointWhoAmI, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": "user-1", "email": "john.doe@example.com", "username": "renamed", "role": "client"},
		})
	})

	user, source, err := f.manager.GetProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, auth.ProfileSourceRemote, source)
	require.Equal(t, "renamed", user.Username)

	cached, err := f.store.CachedUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "renamed", cached.Username)
	require.Equal(t, "renamed", f.manager.State().User.Username)
}

func TestGetProfileFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	seedSession(t, f)
	f.manager.Hydrate(ctx)

	f.mux.HandleFunc(transport.EndpointWhoAmI, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	user, source, err := f.manager.GetProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, auth.ProfileSourceCache, source)
	require.Equal(t, "john.doe@example.com", user.Email)
}

func TestGetProfileWithNoCacheFails(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	f.mux.HandleFunc(transport.EndpointWhoAmI, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, _, err := f.manager.GetProfile(ctx)
	require.ErrorIs(t, err, auth.ErrProfileUnavailable)
}

func TestVerifyForgotPasswordReturnsResetToken(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	f.mux.HandleFunc(transport.EndpointVerifyForgotPassword, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "user@example.com", body["email"])
		require.Equal(t, "123456", body["verification_code"])
		_ = json.NewEncoder(w).Encode(map[string]string{"reset_token": "reset-1"})
	})

	token, err := f.manager.VerifyForgotPassword(ctx, "User@Example.com", " 123456 ")
	require.NoError(t, err)
	require.Equal(t, "reset-1", token)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	f.mux.HandleFunc(transport.EndpointChangePassword, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "reset-1", body["reset_token"])
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Password changed."})
	})

	message, err := f.manager.ChangePassword(ctx, auth.ChangePasswordInput{
		NewPassword:        "new-secret",
		ConfirmNewPassword: "new-secret",
		ResetToken:         "reset-1",
	})
	require.NoError(t, err)
	require.Equal(t, "Password changed.", message)
}

func TestOnChangeUnsubscribe(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	var calls int
	unsubscribe := f.manager.OnChange(func(auth.AuthState) { calls++ })

	f.manager.Hydrate(ctx)
	require.Equal(t, 1, calls)

	unsubscribe()
	f.manager.Hydrate(ctx)
	require.Equal(t, 1, calls)
}
