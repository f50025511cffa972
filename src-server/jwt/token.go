package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

const issuer = "confdesk"

var ErrInvalidToken = errors.New("invalid token")

// Payload is what a team member's access token carries.
type Payload struct {
	MemberID string `json:"sub"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IssuedAt int64  `json:"iat"`
}

type claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	gojwt.RegisteredClaims
}

// Encode signs payload with HS256, valid for ttl from its IssuedAt.
func Encode(payload Payload, secret string, ttl time.Duration) (string, error) {
	issuedAt := time.Unix(payload.IssuedAt, 0)
	if payload.IssuedAt == 0 {
		issuedAt = time.Now()
	}
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims{
		Name: payload.Name,
		Role: payload.Role,
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   payload.MemberID,
			IssuedAt:  gojwt.NewNumericDate(issuedAt),
			ExpiresAt: gojwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("jwt.Encode: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature, issuer and expiry of token.
func Decode(token string, secret string) (*Payload, error) {
	parsed, err := gojwt.ParseWithClaims(token, &claims{}, func(t *gojwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(issuer),
		gojwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	payload := &Payload{
		MemberID: c.Subject,
		Name:     c.Name,
		Role:     c.Role,
	}
	if c.IssuedAt != nil {
		payload.IssuedAt = c.IssuedAt.Unix()
	}
	return payload, nil
}
