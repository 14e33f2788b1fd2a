package token

import "fmt"

// AuthError means no usable credential exists or the identity provider
// rejected an exchange. Carries the upstream status and parsed error payload
// so callers can build a problem response without re-deriving anything.
type AuthError struct {
	StatusCode int
	Payload    map[string]any
	Reason     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token: authentication failed (HTTP %d): %s", e.StatusCode, e.Reason)
}
