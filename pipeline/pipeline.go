// Package pipeline layers credential handling over the HTTP transport: bearer
// injection for protected endpoints, and a single-flight renew-and-retry
// protocol for 401 responses.
package pipeline

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/fitsession/fitsession-go/credstore"
	"github.com/fitsession/fitsession-go/transport"
)

// publicEndpoints are reachable without credentials. Requests matching this
// list get no Authorization header, and a 401 from them is returned to the
// caller unchanged: a renewal attempt there would be meaningless.
var publicEndpoints = []string{
	transport.EndpointLogin,
	transport.EndpointRegister,
	transport.EndpointGoogleLogin,
	transport.EndpointForgotPassword,
	transport.EndpointVerifyEmail,
	transport.EndpointVerifyForgotPassword,
	transport.EndpointResendOTP,
	transport.EndpointChangePassword,
}

// IsPublicEndpoint reports whether the path matches the public allowlist.
func IsPublicEndpoint(path string) bool {
	for _, endpoint := range publicEndpoints {
		if strings.Contains(path, endpoint) {
			return true
		}
	}
	return false
}

// Client is the credential-aware request pipeline. Every protected call made
// through it carries the current access token; a 401 triggers at most one
// token renewal and one replay per original request. Concurrent 401s share a
// single in-flight renewal.
type Client struct {
	transport *transport.Client
	store     *credstore.Store
	log       zerolog.Logger

	tokenSource func() string      // in-memory access token, bound by the session manager
	tokenSink   func(token string) // pushes a renewed token back into memory
	sessionLost func()             // tells the session manager its state is gone
	redirect    func() error       // navigation to the login surface on session loss

	renewals singleflight.Group
}

// Option modifies a Client at construction time.
type Option func(*Client)

// WithLogger attaches a logger for refresh-path diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithLoginRedirect injects the side effect performed on unrecoverable
// session loss. Failures from the callback are logged, never propagated.
func WithLoginRedirect(redirect func() error) Option {
	return func(c *Client) {
		c.redirect = redirect
	}
}

// New creates a pipeline over the given transport and credential store.
func New(transportClient *transport.Client, store *credstore.Store, options ...Option) (*Client, error) {
	if transportClient == nil {
		return nil, errors.New("[pipeline.New] transport is required")
	}
	if store == nil {
		return nil, errors.New("[pipeline.New] credential store is required")
	}
	c := &Client{
		transport: transportClient,
		store:     store,
		log:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// BindSession connects the pipeline to the in-memory session: source supplies
// the current access token without touching storage, sink receives renewed
// tokens. Called once by the session manager at construction.
func (c *Client) BindSession(source func() string, sink func(token string), lost func()) {
	c.tokenSource = source
	c.tokenSink = sink
	c.sessionLost = lost
}

// Do executes a request with credential handling. For protected endpoints the
// bearer header is attached from the in-memory session. On a 401 the renewal
// protocol runs once; the replayed request's result is returned whatever its
// outcome, so a request can never be retried twice. On renewal failure the
// session is cleared, the login redirect fires, and the original 401 is
// returned — never the renewal error.
func (c *Client) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	public := IsPublicEndpoint(req.Path)
	if !public {
		if token := c.accessToken(ctx); token != "" {
			req.SetHeader("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.transport.Do(ctx, req)
	if err == nil || public || !transport.IsStatus(err, 401) {
		return resp, err
	}

	newToken, renewErr := c.renewAccessToken(ctx)
	if renewErr != nil {
		c.log.Warn().Err(renewErr).Str("path", req.Path).Msg("token renewal failed, session lost")
		if clearErr := c.store.ClearSession(ctx); clearErr != nil {
			c.log.Error().Err(clearErr).Msg("failed to clear session after renewal failure")
		}
		if c.sessionLost != nil {
			c.sessionLost()
		}
		c.redirectToLogin()
		return resp, err
	}

	req.SetHeader("Authorization", "Bearer "+newToken)
	return c.transport.Do(ctx, req)
}

// accessToken reads the current token from the bound session, falling back to
// storage when the pipeline is used standalone.
func (c *Client) accessToken(ctx context.Context) string {
	if c.tokenSource != nil {
		return c.tokenSource()
	}
	session, err := c.store.LoadSession(ctx)
	if err != nil {
		return ""
	}
	return session.AccessToken
}

// renewAccessToken exchanges the stored refresh token for a new access token.
// Concurrent callers share one renewal; the winner persists the token and
// pushes it into the in-memory session before anyone is released.
func (c *Client) renewAccessToken(ctx context.Context) (string, error) {
	result, err, _ := c.renewals.Do("renew", func() (any, error) {
		refreshToken, err := c.store.RefreshToken(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "no refresh token")
		}

		// Straight to the transport: going through the pipeline again would
		// re-enter credential injection on the renewal call itself.
		resp, err := c.transport.Do(ctx, transport.Request{
			Method: "POST",
			Path:   transport.EndpointTokenRefresh,
			Body:   map[string]string{"refresh": refreshToken},
		})
		if err != nil {
			return nil, errors.Wrap(err, "renewal request")
		}

		var payload struct {
			Access string `json:"access"`
		}
		if err := resp.Decode(&payload); err != nil {
			return nil, errors.Wrap(err, "renewal response")
		}
		if payload.Access == "" {
			return nil, errors.New("renewal response missing access token")
		}

		if err := c.store.SetAccessToken(ctx, payload.Access); err != nil {
			return nil, errors.Wrap(err, "persist renewed token")
		}
		if c.tokenSink != nil {
			c.tokenSink(payload.Access)
		}
		return payload.Access, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) redirectToLogin() {
	if c.redirect == nil {
		return
	}
	if err := c.redirect(); err != nil {
		c.log.Error().Err(err).Msg("login redirect failed")
	}
}
