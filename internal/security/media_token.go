package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidMediaToken is returned when a media download token fails verification
var ErrInvalidMediaToken = errors.New("invalid media token")

const mediaTokenIssuer = "ecoquest-media"

// MediaSigner issues short-lived HS256 tokens that authorize downloading one storage key
type MediaSigner struct {
	secret []byte
	now    func() time.Time
}

// NewMediaSigner creates a signer using secret as the HMAC key
func NewMediaSigner(secret string) *MediaSigner {
	return &MediaSigner{secret: []byte(secret), now: time.Now}
}

type mediaClaims struct {
	jwt.RegisteredClaims
}

// Sign returns a token for key that expires after ttl
func (s *MediaSigner) Sign(key string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := mediaClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    mediaTokenIssuer,
			Subject:   key,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign media token: %w", err)
	}
	return token, nil
}

// Verify checks that token is valid, unexpired and issued for key
func (s *MediaSigner) Verify(token, key string) error {
	claims := &mediaClaims{}
	keyFunc := func(*jwt.Token) (interface{}, error) { return s.secret, nil }
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(mediaTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidMediaToken
	}
	if claims.Subject != key {
		return ErrInvalidMediaToken
	}
	return nil
}
