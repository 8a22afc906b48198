package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"energymarket/core/types"
)

var errNoCredentials = errors.New("missing Authorization header")

// authenticator resolves the calling principal from an HS256 bearer token.
// The token subject is the principal.
type authenticator struct {
	secret []byte
	issuer string
}

func newAuthenticator(secret []byte, issuer string) (*authenticator, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("rpc: jwt secret required")
	}
	return &authenticator{secret: append([]byte(nil), secret...), issuer: strings.TrimSpace(issuer)}, nil
}

func (a *authenticator) caller(r *http.Request) (types.Principal, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errNoCredentials
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("Authorization header must use Bearer scheme")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}
	caller, ok := types.ParsePrincipal(claims.Subject)
	if !ok {
		return "", errors.New("token subject required")
	}
	return caller, nil
}

// IssueToken signs a bearer token for subject. It is used by operator tooling
// and tests.
func IssueToken(secret []byte, issuer, subject string) (string, error) {
	claims := jwt.RegisteredClaims{Subject: subject, Issuer: issuer}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
