package chat

import (
	"errors"
	"net/http"
	"net/url"

	"privchat/internal/auth"
)

var (
	ErrMissingToken = errors.New("token query parameter missing or empty")
)

// TokenVerifier is the auth collaborator consulted once at handshake time.
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// Handshake authenticates the websocket upgrade. The bearer token rides the
// query string because browser websocket clients cannot set headers.
type Handshake struct {
	verifier TokenVerifier
}

func NewHandshake(verifier TokenVerifier) *Handshake {
	return &Handshake{verifier: verifier}
}

// TokenFromQuery extracts the token parameter from a raw query string,
// percent-decoded. Returns ErrMissingToken when absent or empty.
func TokenFromQuery(rawQuery string) (string, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", ErrMissingToken
	}
	token := values.Get("token")
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Authenticate verifies the upgrade request's token before any frame
// exchange. The returned status is the HTTP code to reject with when the
// error is non-nil: 400 for a missing token, 401 for an invalid one.
func (h *Handshake) Authenticate(r *http.Request) (*auth.Identity, int, error) {
	token, err := TokenFromQuery(r.URL.RawQuery)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		return nil, http.StatusUnauthorized, err
	}
	return identity, 0, nil
}
