// Package transport performs single HTTP requests against the FitSession API.
// It is stateless: credential injection and retry policy live in the request
// pipeline layered above it.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds every request. A timeout surfaces as ErrNetwork,
	// indistinguishable from any other transport failure.
	DefaultTimeout = 30 * time.Second

	contentTypeJSON = "application/json"
)

// FilePart is one file attachment in a multipart submission.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// Form is a multipart/form-data request body used by endpoints accepting
// file attachments, such as trainer registration with documents. Fields is a
// url.Values so array-style fields can repeat.
type Form struct {
	Fields url.Values
	Files  []FilePart
}

// Request describes a single call. Body is JSON-encoded when non-nil; Form
// takes precedence over Body and produces a multipart submission.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   any
	Form   *Form
}

// SetHeader sets a header on the request, allocating the map on first use.
func (r *Request) SetHeader(key, value string) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
}

// Response is the outcome of a transport-level success, including non-2xx
// statuses. Non-2xx responses are also surfaced as a *RemoteError.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, "[Response.Decode] json.Unmarshal")
	}
	return nil
}

// Client executes requests against a fixed base URL with a fixed timeout.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// ClientOption modifies a Client at construction time.
type ClientOption func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithLogger attaches a logger for failure diagnostics.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithHTTPClient replaces the underlying http.Client (primarily for tests).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.http = httpClient
	}
}

// New creates a transport client for the given API base URL.
func New(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes one request. Transport failures wrap ErrNetwork. A non-2xx
// status returns both the Response and a *RemoteError decoded from the body,
// so callers can branch on the status while error paths stay uniform.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Do] encode body")
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Do] http.NewRequestWithContext")
	}

	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("X-Request-ID", uuid.New().String())

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Debug().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("transport failure")
		return nil, errors.Wrapf(ErrNetwork, "%s %s: %v", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrapf(ErrNetwork, "%s %s: read body: %v", req.Method, req.Path, err)
	}

	resp := &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   respBody,
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		remote := decodeRemoteError(httpResp.StatusCode, respBody)
		c.log.Debug().
			Str("method", req.Method).
			Str("path", req.Path).
			Int("status", httpResp.StatusCode).
			Str("detail", remote.Detail).
			Msg("request failed")
		return resp, remote
	}
	return resp, nil
}

// encodeBody renders the request body and reports its content type.
// Multipart forms carry their boundary in the content type and must not be
// overridden downstream.
func encodeBody(req Request) (io.Reader, string, error) {
	if req.Form != nil {
		return encodeMultipart(req.Form)
	}
	if req.Body == nil {
		return nil, "", nil
	}
	encoded, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "json.Marshal")
	}
	return bytes.NewReader(encoded), contentTypeJSON, nil
}

func encodeMultipart(form *Form) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for field, values := range form.Fields {
		for _, value := range values {
			if err := writer.WriteField(field, value); err != nil {
				return nil, "", errors.Wrapf(err, "field %q", field)
			}
		}
	}
	for _, file := range form.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Filename))
		if file.ContentType != "" {
			header.Set("Content-Type", file.ContentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", errors.Wrapf(err, "file %q", file.Field)
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, "", errors.Wrapf(err, "file %q content", file.Field)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart writer")
	}
	return &buf, writer.FormDataContentType(), nil
}
