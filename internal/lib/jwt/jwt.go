package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Parser signs and verifies unsubscribe tokens. A token binds one subscriber
// email to one product URL so an emailed link can remove exactly that
// subscription and nothing else.
type Parser struct {
	Secret string
}

type unsubscribeClaims struct {
	URL   string `json:"url"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func New(secret string) *Parser {
	return &Parser{
		Secret: secret,
	}
}

// UnsubscribeToken issues a signed token for an unsubscribe link. Tokens
// expire after a year; a stale link failing beats an unbounded one.
func (p *Parser) UnsubscribeToken(url, email string) (string, error) {
	const op = "lib.jwt.UnsubscribeToken"

	claims := unsubscribeClaims{
		URL:   url,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(365 * 24 * time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.Secret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// ParseUnsubscribeToken verifies a token and returns the product URL and
// subscriber email it was issued for.
func (p *Parser) ParseUnsubscribeToken(tokenString string) (url, email string, err error) {
	var claims unsubscribeClaims

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(p.Secret), nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}

	if claims.URL == "" || claims.Email == "" {
		return "", "", ErrInvalidToken
	}

	return claims.URL, claims.Email, nil
}
