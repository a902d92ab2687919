// Package auth holds the session manager: the sole runtime mutator of
// authentication state. All login, logout, renewal, and profile mutations run
// through it so observers always see consistent transitions.
package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fitsession/fitsession-go/credstore"
	"github.com/fitsession/fitsession-go/pipeline"
	"github.com/fitsession/fitsession-go/transport"
	"github.com/fitsession/fitsession-go/users"
)

// ProfileSource tells a GetProfile caller where the returned profile came
// from, replacing the fetched-vs-fell-back distinction that would otherwise
// need error inspection.
type ProfileSource int

const (
	ProfileSourceRemote ProfileSource = iota
	ProfileSourceCache
)

// loginResponse is the shape shared by the login and google-login endpoints.
type loginResponse struct {
	Tokens credstore.TokenPair `json:"tokens"`
	User   *users.User         `json:"user"`
}

// Manager orchestrates the authenticated session. It starts in StateUnknown
// until Hydrate resolves, then cycles between authenticated and
// unauthenticated for the life of the process.
type Manager struct {
	pipeline *pipeline.Client
	store    *credstore.Store
	log      zerolog.Logger

	lock      sync.RWMutex
	state     AuthState
	observers map[int]func(AuthState)
	nextObs   int
}

// ManagerOption modifies a Manager at construction time.
type ManagerOption func(*Manager)

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager wires a session manager over the request pipeline and credential
// store, and binds itself as the pipeline's in-memory token source so
// protected requests never touch storage on the hot path.
func NewManager(pipe *pipeline.Client, store *credstore.Store, options ...ManagerOption) (*Manager, error) {
	if pipe == nil {
		return nil, errors.New("[NewManager] pipeline is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}
	m := &Manager{
		pipeline:  pipe,
		store:     store,
		log:       zerolog.Nop(),
		state:     AuthState{State: StateUnknown},
		observers: make(map[int]func(AuthState)),
	}
	for _, opt := range options {
		opt(m)
	}
	pipe.BindSession(m.currentToken, m.adoptToken, m.handleSessionLost)
	return m, nil
}

// handleSessionLost runs when the pipeline exhausts token renewal: durable
// state is already cleared, so the in-memory session follows.
func (m *Manager) handleSessionLost() {
	m.setState(AuthState{State: StateUnauthenticated})
}

// State returns the current session snapshot.
func (m *Manager) State() AuthState {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

// OnChange registers an observer invoked after every state transition with
// the new snapshot. The returned function unsubscribes it.
func (m *Manager) OnChange(fn func(AuthState)) func() {
	m.lock.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.lock.Unlock()

	return func() {
		m.lock.Lock()
		delete(m.observers, id)
		m.lock.Unlock()
	}
}

// Hydrate loads the persisted session once at startup, transitioning out of
// StateUnknown. A missing or unreadable session resolves to unauthenticated;
// hydration itself never fails the caller.
func (m *Manager) Hydrate(ctx context.Context) {
	session, err := m.store.LoadSession(ctx)
	if err != nil || session.Empty() {
		m.setState(AuthState{State: StateUnauthenticated})
		return
	}
	m.setState(AuthState{
		State:       StateAuthenticated,
		AccessToken: session.AccessToken,
		User:        session.User,
	})
}

// Login authenticates with email and password. The email is normalized
// before it is sent. On success the token pair and profile are persisted as
// one batch, the remembered-emails list is updated when rememberMe is set,
// and the session transitions to authenticated. Remote rejections and
// network failures propagate unmodified so the UI can render field errors.
func (m *Manager) Login(ctx context.Context, email, password string, rememberMe bool) (*users.User, error) {
	normalized := users.NormalizeEmail(email)

	resp, err := m.pipeline.Do(ctx, transport.Request{
		Method: "POST",
		Path:   transport.EndpointLogin,
		Body: map[string]string{
			"email":    normalized,
			"password": strings.TrimSpace(password),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] login request")
	}

	var payload loginResponse
	if err := resp.Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] decode response")
	}

	rememberEmail := ""
	if rememberMe {
		rememberEmail = normalized
	}
	if err := m.store.SaveSession(ctx, payload.Tokens, payload.User, rememberEmail); err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] persist session")
	}

	m.setState(AuthState{
		State:       StateAuthenticated,
		AccessToken: payload.Tokens.Access,
		User:        payload.User,
	})
	return payload.User, nil
}

// GoogleLogin exchanges a Google ID token for a session. The account email
// returned by the server is always added to the remembered-emails list.
func (m *Manager) GoogleLogin(ctx context.Context, idToken string) (*users.User, error) {
	resp, err := m.pipeline.Do(ctx, transport.Request{
		Method: "POST",
		Path:   transport.EndpointGoogleLogin,
		Body:   map[string]string{"id_token": idToken},
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.GoogleLogin] google-login request")
	}

	var payload loginResponse
	if err := resp.Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "[Manager.GoogleLogin] decode response")
	}

	rememberEmail := ""
	if payload.User != nil {
		rememberEmail = payload.User.Email
	}
	if err := m.store.SaveSession(ctx, payload.Tokens, payload.User, rememberEmail); err != nil {
		return nil, errors.Wrap(err, "[Manager.GoogleLogin] persist session")
	}

	m.setState(AuthState{
		State:       StateAuthenticated,
		AccessToken: payload.Tokens.Access,
		User:        payload.User,
	})
	return payload.User, nil
}

// Register submits a client/business registration. It does not mutate the
// session; the account must verify its email and then log in.
func (m *Manager) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	resp, err := m.pipeline.Do(ctx, transport.Request{
		Method: "POST",
		Path:   transport.EndpointRegister,
		Body: map[string]any{
			"email":                  users.NormalizeEmail(input.Email),
			"password":               strings.TrimSpace(input.Password),
			"confirm_password":       strings.TrimSpace(input.ConfirmPassword),
			"business_name":          strings.TrimSpace(input.BusinessName),
			"username":               strings.TrimSpace(input.OwnerName),
			"address":                strings.TrimSpace(input.Address),
			"pan_vat_no":             strings.TrimSpace(input.PanVatNo),
			"contact_no":             strings.TrimSpace(input.ContactNo),
			"business_type":          strings.TrimSpace(input.BusinessType),
			"agree_company_policies": input.AgreeCompanyPolicies,
			"receive_news":           input.ReceiveNews,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Register] register request")
	}
	var result RegisterResult
	if err := resp.Decode(&result); err != nil {
		return nil, errors.Wrap(err, "[Manager.Register] decode response")
	}
	return &result, nil
}

// CheckEmailExists asks whether an account already uses the email.
func (m *Manager) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	resp, err := m.pipeline.Do(ctx, transport.Request{
		Method: "POST",
		Path:   transport.EndpointCheckEmail,
		Body:   map[string]string{"email": users.NormalizeEmail(email)},
	})
	if err != nil {
		return false, errors.Wrap(err, "[Manager.CheckEmailExists] request")
	}
	var payload struct {
		Exists bool `json:"exists"`
	}
	if err := resp.Decode(&payload); err != nil {
		return false, errors.Wrap(err, "[Manager.CheckEmailExists] decode response")
	}
	return payload.Exists, nil
}

// Logout invalidates the session remotely on a best-effort basis and always
// clears local state afterwards. A dangling local token after the user asked
// to sign out is a worse failure than a stale server-side session, so the
// remote outcome never skips local cleanup.
func (m *Manager) Logout(ctx context.Context) error {
	if m.currentToken() != "" {
		if _, err := m.pipeline.Do(ctx, transport.Request{
			Method: "GET",
			Path:   transport.EndpointLogout,
		}); err != nil {
			m.log.Warn().Err(err).Msg("remote logout failed, clearing local session anyway")
		}
	}

	clearErr := m.store.ClearSession(ctx)
	m.setState(AuthState{State: StateUnauthenticated})
	if clearErr != nil {
		return errors.Wrap(clearErr, "[Manager.Logout] clear local session")
	}
	return nil
}

// GetProfile fetches the remote profile, refreshing both the in-memory state
// and the durable cache. When the fetch fails and a cached profile exists,
// that copy is returned with ProfileSourceCache; with no cache the call fails
// with ErrProfileUnavailable.
func (m *Manager) GetProfile(ctx context.Context) (*users.User, ProfileSource, error) {
	resp, err := m.pipeline.Do(ctx, transport.Request{
		Method: "GET",
		Path:   transport.EndpointWhoAmI,
	})
	if err != nil {
		cached, cacheErr := m.store.CachedUser(ctx)
		if cacheErr != nil || cached == nil {
			return nil, ProfileSourceRemote, errors.Wrapf(ErrProfileUnavailable, "fetch failed: %v", err)
		}
		m.log.Debug().Err(err).Msg("profile fetch failed, serving cached copy")
		return cached, ProfileSourceCache, nil
	}

	user, err := decodeProfile(resp)
	if err != nil {
		return nil, ProfileSourceRemote, errors.Wrap(err, "[Manager.GetProfile] decode response")
	}

	if err := m.store.SetUser(ctx, user); err != nil {
		return nil, ProfileSourceRemote, errors.Wrap(err, "[Manager.GetProfile] cache profile")
	}
	m.setUser(user)
	return user, ProfileSourceRemote, nil
}

// UpdateProfile sends a partial profile update; string fields are trimmed and
// empty ones omitted. On success the cache and in-memory state are
// overwritten with the returned profile. Validation failures propagate
// without retry.
func (m *Manager) UpdateProfile(ctx context.Context, input UpdateProfileInput) (*users.User, error) {
	resp, err := m.pipeline.Do(ctx, transport.Request{
		Method: "PUT",
		Path:   transport.EndpointUpdateProfile,
		Body:   input.payload(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.UpdateProfile] update request")
	}

	user, err := decodeProfile(resp)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.UpdateProfile] decode response")
	}

	if err := m.store.SetUser(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[Manager.UpdateProfile] cache profile")
	}
	m.setUser(user)
	return user, nil
}

// ForgotPassword starts the password-reset flow by sending a verification
// code to the email. Stateless with respect to the session.
func (m *Manager) ForgotPassword(ctx context.Context, email string) (string, error) {
	return m.messageCall(ctx, transport.EndpointForgotPassword, map[string]string{
		"email": users.NormalizeEmail(email),
	})
}

// ResendForgotPasswordCode re-sends the password-reset verification code.
func (m *Manager) ResendForgotPasswordCode(ctx context.Context, email string) (string, error) {
	return m.ForgotPassword(ctx, email)
}

// VerifyEmail confirms a registration verification code.
func (m *Manager) VerifyEmail(ctx context.Context, email, code string) (string, error) {
	return m.messageCall(ctx, transport.EndpointVerifyEmail, map[string]string{
		"email":             users.NormalizeEmail(email),
		"verification_code": strings.TrimSpace(code),
	})
}

// VerifyForgotPassword confirms a password-reset code and returns the reset
// token used by ChangePassword.
func (m *Manager) VerifyForgotPassword(ctx context.Context, email, code string) (string, error) {
	resp, err := m.pipeline.Do(ctx, transport.Request{
		Method: "POST",
		Path:   transport.EndpointVerifyForgotPassword,
		Body: map[string]string{
			"email":             users.NormalizeEmail(email),
			"verification_code": strings.TrimSpace(code),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "[Manager.VerifyForgotPassword] request")
	}
	var payload struct {
		ResetToken string `json:"reset_token"`
	}
	if err := resp.Decode(&payload); err != nil {
		return "", errors.Wrap(err, "[Manager.VerifyForgotPassword] decode response")
	}
	return payload.ResetToken, nil
}

// ResendOTP re-sends the registration verification code.
func (m *Manager) ResendOTP(ctx context.Context, email string) (string, error) {
	return m.messageCall(ctx, transport.EndpointResendOTP, map[string]string{
		"email": users.NormalizeEmail(email),
	})
}

// ChangePassword sets a new password using a reset token. Stateless with
// respect to the session; the user logs in again afterwards.
func (m *Manager) ChangePassword(ctx context.Context, input ChangePasswordInput) (string, error) {
	return m.messageCall(ctx, transport.EndpointChangePassword, map[string]string{
		"new_password":         strings.TrimSpace(input.NewPassword),
		"confirm_new_password": strings.TrimSpace(input.ConfirmNewPassword),
		"reset_token":          strings.TrimSpace(input.ResetToken),
	})
}

// RememberedEmails exposes the remembered login emails, most recent first.
func (m *Manager) RememberedEmails(ctx context.Context) ([]string, error) {
	return m.store.RememberedEmails(ctx)
}

// ForgetEmail removes one email from the remembered list.
func (m *Manager) ForgetEmail(ctx context.Context, email string) error {
	return m.store.ForgetEmail(ctx, email)
}

func (m *Manager) messageCall(ctx context.Context, path string, body map[string]string) (string, error) {
	resp, err := m.pipeline.Do(ctx, transport.Request{
		Method: "POST",
		Path:   path,
		Body:   body,
	})
	if err != nil {
		return "", errors.Wrapf(err, "[Manager] %s", path)
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := resp.Decode(&payload); err != nil {
		return "", errors.Wrapf(err, "[Manager] %s: decode response", path)
	}
	return payload.Message, nil
}

// decodeProfile handles the profile endpoints' varying envelope: the user may
// arrive bare, or nested under "user" or "data".
func decodeProfile(resp *transport.Response) (*users.User, error) {
	var envelope struct {
		User *users.User `json:"user"`
		Data *users.User `json:"data"`
	}
	if err := resp.Decode(&envelope); err == nil {
		if envelope.User != nil {
			return envelope.User, nil
		}
		if envelope.Data != nil {
			return envelope.Data, nil
		}
	}
	var user users.User
	if err := resp.Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (m *Manager) currentToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state.AccessToken
}

// adoptToken installs a renewed access token without disturbing the rest of
// the session. Called by the pipeline after a successful renewal.
func (m *Manager) adoptToken(token string) {
	m.lock.Lock()
	m.state.AccessToken = token
	if m.state.State == StateUnknown {
		m.state.State = StateAuthenticated
	}
	snapshot := m.state
	observers := m.snapshotObservers()
	m.lock.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

func (m *Manager) setUser(user *users.User) {
	m.lock.Lock()
	m.state.User = user
	snapshot := m.state
	observers := m.snapshotObservers()
	m.lock.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

func (m *Manager) setState(next AuthState) {
	m.lock.Lock()
	m.state = next
	observers := m.snapshotObservers()
	m.lock.Unlock()

	for _, fn := range observers {
		fn(next)
	}
}

// snapshotObservers must be called with the lock held.
func (m *Manager) snapshotObservers() []func(AuthState) {
	observers := make([]func(AuthState), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	return observers
}
