package auth

import "github.com/fitsession/fitsession-go/users"

// State is the session manager's position in its lifecycle. There is no
// terminal state; the machine cycles between Authenticated and
// Unauthenticated for the life of the process.
type State int

const (
	// StateUnknown means startup hydration has not finished. Consumers must
	// treat it as "do not redirect yet", not as logged out.
	StateUnknown State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// AuthState is the snapshot observers receive. Invariant: State ==
// StateAuthenticated implies AccessToken is non-empty.
type AuthState struct {
	State       State
	AccessToken string
	User        *users.User
}

// Authenticated reports a determined, logged-in session.
func (s AuthState) Authenticated() bool {
	return s.State == StateAuthenticated
}
