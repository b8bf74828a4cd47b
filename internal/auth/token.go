package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience stamped into every issued token and required on verification.
const Audience = "chat-app"

var (
	ErrTokenInvalid   = errors.New("invalid or malformed token")
	ErrTokenExpired   = errors.New("token has expired")
	ErrWrongAudience  = errors.New("token audience mismatch")
	ErrMissingSubject = errors.New("token missing subject claim")
)

// Claims carried by a verified token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity is the verified result handed to the connection layer.
type Identity struct {
	UserID   string
	Username string
	Expiry   time.Time
}

// Service issues and verifies HS256 bearer tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret), ttl: 24 * time.Hour}
}

// Issue signs a token for the given user.
func (s *Service) Issue(userID, username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{Audience},
			Issuer:    "privchat",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	return token.SignedString(s.secret)
}

// Verify checks signature, expiry and audience, and returns the identity
// bound to the token.
func (s *Service) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	audOK := false
	for _, aud := range claims.Audience {
		if aud == Audience {
			audOK = true
			break
		}
	}
	if !audOK {
		return nil, ErrWrongAudience
	}

	var expiry time.Time
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	return &Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Expiry:   expiry,
	}, nil
}
