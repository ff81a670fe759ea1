package compliance

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, forged and expired opt-out tokens alike;
// callers have no reason to distinguish them.
var ErrInvalidToken = errors.New("invalid opt-out token")

type optOutClaims struct {
	Email    string `json:"email"`
	Campaign string `json:"campaign"`
	jwt.RegisteredClaims
}

// TokenMinter mints and verifies opt-out tokens. Tokens are keyed-hash
// (HS256) values signed with the per-installation secret, so forgery
// requires the secret, not just knowledge of the encoding scheme.
type TokenMinter struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

func NewTokenMinter(secret string, ttl time.Duration) *TokenMinter {
	return &TokenMinter{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *TokenMinter) Mint(email, campaignID string) (string, error) {
	now := m.now()
	claims := &optOutClaims{
		Email:    email,
		Campaign: campaignID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify inverts Mint. After the embedded expiration has passed it reports
// invalid even for a well-formed token.
func (m *TokenMinter) Verify(token string) (email, campaignID string, err error) {
	parsed, err := jwt.ParseWithClaims(token, &optOutClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*optOutClaims)
	if !ok || claims.Email == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Email, claims.Campaign, nil
}
