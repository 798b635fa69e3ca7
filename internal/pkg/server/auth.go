package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/golang-jwt/jwt/v5"

	"github.com/anicoll/sensor-monitor/internal/pkg/config"
	"github.com/anicoll/sensor-monitor/pkg/hasher"
)

const tokenSubject = "dashboard"

var (
	errUnauthorized   = errors.New("unauthorized")
	errBadCredentials = errors.New("invalid password")
	errAuthDisabled   = errors.New("authentication is not configured")
)

// Auth issues and checks bearer tokens for mutating routes. With no password
// hash configured every request is allowed.
type Auth struct {
	hash   string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuth(cfg config.AuthConfig) (*Auth, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		generated, err := hasher.GenerateToken(32)
		if err != nil {
			return nil, err
		}
		secret = generated
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{
		hash:   cfg.PasswordHash,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (a *Auth) Enabled() bool {
	return a != nil && a.hash != ""
}

func (a *Auth) Issue(password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, errAuthDisabled
	}
	if !hasher.PasswordCorrect(password, a.hash) {
		return "", time.Time{}, errBadCredentials
	}
	now := a.now()
	expires := now.Add(a.ttl)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   tokenSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (a *Auth) Verify(token string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now), jwt.WithSubject(tokenSubject))
	return err
}

func (a *Auth) authenticate(_ context.Context, input *openapi3filter.AuthenticationInput) error {
	if !a.Enabled() {
		return nil
	}
	header := input.RequestValidationInput.Request.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return errUnauthorized
	}
	return a.Verify(token)
}
