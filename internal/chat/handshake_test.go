package chat

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"privchat/internal/auth"
)

func TestTokenFromQuery(t *testing.T) {
	if _, err := TokenFromQuery(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("empty query: got %v, want ErrMissingToken", err)
	}
	if _, err := TokenFromQuery("token="); !errors.Is(err, ErrMissingToken) {
		t.Errorf("empty token: got %v, want ErrMissingToken", err)
	}

	token, err := TokenFromQuery("token=abc.def.ghi")
	if err != nil || token != "abc.def.ghi" {
		t.Errorf("plain token: got %q, %v", token, err)
	}

	// Percent-encoded tokens arrive decoded.
	encoded := "token=" + url.QueryEscape("a+b/c=")
	token, err = TokenFromQuery(encoded)
	if err != nil || token != "a+b/c=" {
		t.Errorf("encoded token: got %q, %v", token, err)
	}
}

func TestHandshakeAuthenticate(t *testing.T) {
	tokens := auth.NewService("test-secret")
	h := NewHandshake(tokens)

	valid, err := tokens.Issue("u1", "alice")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("missing token is a 400", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		_, status, err := h.Authenticate(r)
		if err == nil || status != http.StatusBadRequest {
			t.Errorf("got status %d, err %v", status, err)
		}
	})

	t.Run("garbage token is a 401", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws?token=not-a-jwt", nil)
		_, status, err := h.Authenticate(r)
		if err == nil || status != http.StatusUnauthorized {
			t.Errorf("got status %d, err %v", status, err)
		}
	})

	t.Run("token signed with another secret is a 401", func(t *testing.T) {
		other, err := auth.NewService("other-secret").Issue("u1", "alice")
		if err != nil {
			t.Fatal(err)
		}
		r := httptest.NewRequest(http.MethodGet, "/ws?token="+url.QueryEscape(other), nil)
		_, status, err := h.Authenticate(r)
		if err == nil || status != http.StatusUnauthorized {
			t.Errorf("got status %d, err %v", status, err)
		}
	})

	t.Run("valid token binds the identity", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws?token="+url.QueryEscape(valid), nil)
		identity, status, err := h.Authenticate(r)
		if err != nil {
			t.Fatalf("status %d, err %v", status, err)
		}
		if identity.UserID != "u1" || identity.Username != "alice" {
			t.Errorf("identity = %+v", identity)
		}
	})
}
