// Package auth turns bearer tokens from the identity provider into callers.
// Tokens are HS256 JWTs whose subject is the user id and whose role claim is
// consumer or business.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kkkkikiki/referral/internal/service"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token payload
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier validates tokens signed with a shared secret
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier creates a verifier. An empty issuer disables the iss check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}
}

// Verify parses token and returns the caller it identifies
func (v *Verifier) Verify(token string) (service.Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return service.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	caller := service.Caller{ID: strings.TrimSpace(claims.Subject), Role: service.Role(claims.Role)}
	if caller.ID == "" {
		return service.Caller{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if !caller.Role.Valid() {
		return service.Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return caller, nil
}

// VerifyHeader extracts the token from an Authorization header value
func (v *Verifier) VerifyHeader(header string) (service.Caller, error) {
	token, ok := BearerToken(header)
	if !ok {
		return service.Caller{}, ErrMissingToken
	}
	return v.Verify(token)
}

// BearerToken returns the token of a "Bearer <token>" header value
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Issuer signs tokens. It backs local tooling and tests; production tokens
// come from the identity provider.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewIssuer creates an issuer of tokens valid for ttl
func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Issue signs a token for caller
func (i *Issuer) Issue(caller service.Caller) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role: string(caller.Role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
