package room

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssueToken signs a viewer token for email. A zero ttl never expires.
func (s service) IssueToken(email string, ttl time.Duration) (string, error) {
	if !s.validate.Email(email) {
		return "", ErrInvalidEmail
	}

	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  email,
			IssuedAt: jwt.NewNumericDate(s.clock.Now()),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(s.clock.Now().Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(s.secret)
}

// ParseToken returns the viewer email carried by a token.
func (s service) ParseToken(tokenString string) (string, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid || !s.validate.Email(claims.Email) {
		return "", ErrInvalidToken
	}

	return claims.Email, nil
}
