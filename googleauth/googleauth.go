// Package googleauth drives the Google side of social login: it obtains and
// verifies a Google ID token, which the session manager then exchanges with
// the FitSession API for an application token pair.
package googleauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// Config identifies the registered Google OAuth client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// IDToken is a verified Google identity assertion. Raw is what gets sent to
// the FitSession google-login endpoint; the claims are for display only.
type IDToken struct {
	Raw     string
	Subject string
	Email   string
	Name    string
}

// Flow performs the authorization-code exchange against Google.
type Flow struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewFlow discovers Google's OIDC configuration and prepares the exchange.
func NewFlow(ctx context.Context, cfg Config) (*Flow, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("[googleauth.NewFlow] client ID is required")
	}
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, errors.Wrap(err, "[googleauth.NewFlow] oidc.NewProvider")
	}
	return &Flow{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthURL builds the Google consent URL carrying state and nonce. Both values
// must be retained by the caller: state is checked on the redirect, nonce is
// checked against the issued ID token.
func (f *Flow) AuthURL(state, nonce string) string {
	return f.oauth.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange redeems the authorization code and verifies the returned ID token:
// signature, audience, and the nonce bound at AuthURL time.
func (f *Flow) Exchange(ctx context.Context, code, nonce string) (*IDToken, error) {
	token, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.Exchange] code exchange")
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("[Flow.Exchange] no ID token in response")
	}

	idToken, err := f.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.Exchange] ID token verification")
	}

	var claims struct {
		Nonce string `json:"nonce"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[Flow.Exchange] extract claims")
	}
	if claims.Nonce != nonce {
		return nil, errors.New("[Flow.Exchange] nonce mismatch")
	}

	return &IDToken{
		Raw:     rawIDToken,
		Subject: idToken.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}

// RandomState returns a URL-safe random value for the state and nonce
// parameters.
func RandomState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "[googleauth.RandomState] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
