package auth

import (
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/fitsession/fitsession-go/transport"
)

var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrProfileUnavailable = errors.New("profile unavailable and no cached copy")
)

// IsInvalidCredentials reports whether err is a remote 4xx rejection of a
// login or registration attempt. The underlying RemoteError is left intact so
// the UI can surface field-level messages.
func IsInvalidCredentials(err error) bool {
	var remote *transport.RemoteError
	return pkgerrors.As(err, &remote) && remote.Status >= 400 && remote.Status < 500
}

// IsNetworkFailure reports whether err is a transport-level failure,
// including the request timeout.
func IsNetworkFailure(err error) bool {
	return pkgerrors.Is(err, transport.ErrNetwork)
}
