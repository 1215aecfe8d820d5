package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

const issuer = "cms-service"

// JWT issues and verifies HS256 access tokens whose subject is the username.
type JWT struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewJWT(secret string, ttl time.Duration, clock clockwork.Clock) (*JWT, error) {
	if len(secret) < 16 {
		return nil, errors.New("token signing secret must be at least 16 bytes")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JWT{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

func (j *JWT) Issue(username string) (string, time.Time, error) {
	now := j.clock.Now()
	exp := now.Add(j.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp.Truncate(time.Second), nil
}

func (j *JWT) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.clock.Now),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
