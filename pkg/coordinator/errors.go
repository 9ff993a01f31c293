package coordinator

import (
	"errors"

	"github.com/nasmon/unraid/pkg/api"
	"github.com/nasmon/unraid/pkg/graphql"
)

// ErrReauthRequired marks refresh failures caused by the server rejecting
// the API key. The host should prompt for new credentials instead of
// retrying.
var ErrReauthRequired = errors.New("reauthentication required")

// Retryable reports whether a refresh failure is transient and worth
// retrying on the host's schedule. Authentication failures, malformed
// responses and incompatible API versions are setup failures, not
// transient conditions.
func Retryable(err error) bool {
	if errors.Is(err, ErrReauthRequired) {
		return false
	}

	var (
		unauthorized *graphql.UnauthorizedError
		invalid      *graphql.InvalidResponseError
		incompatible *api.IncompatibleVersionError
	)
	if errors.As(err, &unauthorized) || errors.As(err, &invalid) || errors.As(err, &incompatible) {
		return false
	}

	return true
}
