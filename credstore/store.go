package credstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/fitsession/fitsession-go/users"
)

// Logical key names. These match the keys the mobile client historically used
// so an upgraded store can read state written by older builds.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUser         = "user"
	keySavedEmails  = "saved_emails"
	keyOnboarding   = "@onboarding_completed"
)

// maxRememberedEmails caps the remembered-emails list.
const maxRememberedEmails = 10

// TokenPair is the access/refresh credential pair issued at login. Both are
// opaque to the client; neither is ever decoded locally.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Session is the persisted authentication snapshot loaded at startup.
// A Session is either complete (token and profile) or empty; partial state in
// storage is treated as absent.
type Session struct {
	AccessToken string
	User        *users.User
}

// Empty reports whether the session carries no credentials.
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.User == nil
}

// Store provides typed, durable persistence for the four logical credential
// entries: access token, refresh token, cached profile, and the
// remembered-emails list. It is a thin policy layer; durability and batch
// atomicity come from the KV backend.
type Store struct {
	kv KV
}

// New wraps a KV backend in a credential store.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// LoadSession reads the persisted session. A missing access token or profile
// yields the empty session rather than a partial one. Read failures are
// treated as absence: a client that cannot read its cache is logged out, not
// broken.
func (s *Store) LoadSession(ctx context.Context) (Session, error) {
	token, err := s.kv.Get(ctx, keyAccessToken)
	if err != nil {
		return Session{}, nil
	}
	serialized, err := s.kv.Get(ctx, keyUser)
	if err != nil {
		return Session{}, nil
	}
	user, err := users.Unmarshal(serialized)
	if err != nil {
		return Session{}, nil
	}
	if token == "" || user == nil {
		return Session{}, nil
	}
	return Session{AccessToken: token, User: user}, nil
}

// SaveSession persists the token pair and profile as one batch. When
// rememberEmail is non-empty the remembered-emails list is updated in the same
// batch: the normalized email moves to the front, duplicates are removed, and
// the list is capped at ten entries. Write failures propagate; silently
// swallowing them would leave memory and storage disagreeing.
func (s *Store) SaveSession(ctx context.Context, tokens TokenPair, user *users.User, rememberEmail string) error {
	serialized, err := users.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "[Store.SaveSession] marshal profile")
	}

	entries := map[string]string{
		keyAccessToken:  tokens.Access,
		keyRefreshToken: tokens.Refresh,
		keyUser:         serialized,
	}

	if rememberEmail != "" {
		updated, err := s.rememberedWith(ctx, rememberEmail)
		if err != nil {
			return errors.Wrap(err, "[Store.SaveSession] remembered emails")
		}
		entries[keySavedEmails] = updated
	}

	if err := s.kv.SetMulti(ctx, entries); err != nil {
		return errors.Wrap(err, "[Store.SaveSession] SetMulti")
	}
	return nil
}

// SetAccessToken overwrites only the access token, used after a silent
// renewal where the refresh token and profile are unchanged.
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	if err := s.kv.Set(ctx, keyAccessToken, token); err != nil {
		return errors.Wrap(err, "[Store.SetAccessToken] Set")
	}
	return nil
}

// RefreshToken reads the persisted refresh token. Absence is ErrNotFound.
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	token, err := s.kv.Get(ctx, keyRefreshToken)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNotFound
	}
	return token, nil
}

// SetUser overwrites the cached profile entry.
func (s *Store) SetUser(ctx context.Context, user *users.User) error {
	serialized, err := users.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "[Store.SetUser] marshal profile")
	}
	if err := s.kv.Set(ctx, keyUser, serialized); err != nil {
		return errors.Wrap(err, "[Store.SetUser] Set")
	}
	return nil
}

// CachedUser returns the cached profile, or ErrNotFound when none is stored.
func (s *Store) CachedUser(ctx context.Context) (*users.User, error) {
	serialized, err := s.kv.Get(ctx, keyUser)
	if err != nil {
		return nil, err
	}
	return users.Unmarshal(serialized)
}

// ClearSession removes the access token, refresh token, and cached profile as
// one batch so no reader can observe a torn session. The remembered-emails
// list survives; forgetting emails is an explicit user action.
func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.kv.DelMulti(ctx, keyAccessToken, keyRefreshToken, keyUser); err != nil {
		return errors.Wrap(err, "[Store.ClearSession] DelMulti")
	}
	return nil
}

// RememberedEmails returns the remembered-emails list, most recent first.
func (s *Store) RememberedEmails(ctx context.Context) ([]string, error) {
	serialized, err := s.kv.Get(ctx, keySavedEmails)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var emails []string
	if err := json.Unmarshal([]byte(serialized), &emails); err != nil {
		return nil, errors.Wrap(err, "[Store.RememberedEmails] json.Unmarshal")
	}
	return emails, nil
}

// RememberEmail moves the normalized email to the front of the remembered
// list, deduplicating and capping per policy.
func (s *Store) RememberEmail(ctx context.Context, email string) error {
	updated, err := s.rememberedWith(ctx, email)
	if err != nil {
		return errors.Wrap(err, "[Store.RememberEmail] remembered emails")
	}
	if err := s.kv.Set(ctx, keySavedEmails, updated); err != nil {
		return errors.Wrap(err, "[Store.RememberEmail] Set")
	}
	return nil
}

// ForgetEmail removes one normalized email from the remembered list.
// Removing an email that is not present is a no-op.
func (s *Store) ForgetEmail(ctx context.Context, email string) error {
	emails, err := s.RememberedEmails(ctx)
	if err != nil {
		return errors.Wrap(err, "[Store.ForgetEmail] read")
	}
	normalized := users.NormalizeEmail(email)
	filtered := make([]string, 0, len(emails))
	for _, e := range emails {
		if e != normalized {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == len(emails) {
		return nil
	}
	serialized, err := json.Marshal(filtered)
	if err != nil {
		return errors.Wrap(err, "[Store.ForgetEmail] json.Marshal")
	}
	if err := s.kv.Set(ctx, keySavedEmails, string(serialized)); err != nil {
		return errors.Wrap(err, "[Store.ForgetEmail] Set")
	}
	return nil
}

// OnboardingCompleted reports whether the onboarding flow has been finished
// on this install. Read failures count as not completed.
func (s *Store) OnboardingCompleted(ctx context.Context) bool {
	value, err := s.kv.Get(ctx, keyOnboarding)
	if err != nil {
		return false
	}
	return value == "true"
}

// SetOnboardingCompleted marks the onboarding flow as finished.
func (s *Store) SetOnboardingCompleted(ctx context.Context) error {
	if err := s.kv.Set(ctx, keyOnboarding, "true"); err != nil {
		return errors.Wrap(err, "[Store.SetOnboardingCompleted] Set")
	}
	return nil
}

// ResetOnboarding clears the onboarding flag.
func (s *Store) ResetOnboarding(ctx context.Context) error {
	if err := s.kv.Del(ctx, keyOnboarding); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "[Store.ResetOnboarding] Del")
	}
	return nil
}

// rememberedWith returns the serialized remembered-emails list with email
// promoted to the front.
func (s *Store) rememberedWith(ctx context.Context, email string) (string, error) {
	emails, err := s.RememberedEmails(ctx)
	if err != nil {
		return "", err
	}
	normalized := users.NormalizeEmail(email)

	updated := make([]string, 0, len(emails)+1)
	updated = append(updated, normalized)
	for _, e := range emails {
		if e != normalized {
			updated = append(updated, e)
		}
	}
	if len(updated) > maxRememberedEmails {
		updated = updated[:maxRememberedEmails]
	}

	serialized, err := json.Marshal(updated)
	if err != nil {
		return "", errors.Wrap(err, "json.Marshal")
	}
	return string(serialized), nil
}
