package utils // utils provides token signing/verification and password hashing helpers

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens

	"github.com/minhtran/blog-backend/internal/model"
)

// ErrInvalidToken is returned for every verification failure: bad signature,
// wrong signing method, malformed payload or expiry.  Callers must not learn
// which of those occurred.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the payload of a short-lived access token.  The role is a
// snapshot taken at issuance time; a role change only becomes visible to the
// guards after the next refresh.
type AccessClaims struct {
	UserID   uint64     `json:"userId"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a long-lived refresh token.  RefreshTokenID
// binds the signed token to its database row so that a stolen token which has
// already been rotated is rejected even though its signature still verifies.
type RefreshClaims struct {
	UserID         uint64 `json:"userId"`
	RefreshTokenID uint64 `json:"refreshTokenId"`
	jwt.RegisteredClaims
}

// SignAccessToken builds and signs an HS256 access token with the access
// secret and the given TTL.
func SignAccessToken(secret string, userID uint64, username string, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := AccessClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// SignRefreshToken builds and signs an HS256 refresh token with the refresh
// secret.  The refresh secret is distinct from the access secret so leaking
// one never allows forging the other kind of token.
func SignRefreshToken(secret string, userID, refreshTokenID uint64, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := RefreshClaims{
		UserID:         userID,
		RefreshTokenID: refreshTokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// VerifyAccessToken parses and validates an access token.  Any failure is
// collapsed into ErrInvalidToken.
func VerifyAccessToken(secret, raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := parseInto(secret, raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken parses and validates a refresh token against the
// refresh secret.
func VerifyRefreshToken(secret, raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parseInto(secret, raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func parseInto(secret, raw string, claims jwt.Claims) error {
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return ErrInvalidToken
	}
	return nil
}
