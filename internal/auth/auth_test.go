package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/referral/internal/service"
)

const secret = "test-secret"

func TestIssueAndVerify(t *testing.T) {
	token, err := NewIssuer(secret, "referral", time.Hour).Issue(service.Caller{ID: "user-1", Role: service.RoleConsumer})
	require.NoError(t, err)

	caller, err := NewVerifier(secret, "referral").VerifyHeader("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, service.Caller{ID: "user-1", Role: service.RoleConsumer}, caller)
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier(secret, "referral")
	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func(mutate func(c *Claims)) Claims {
		c := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				Issuer:    "referral",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role: "business",
		}
		if mutate != nil {
			mutate(&c)
		}
		return c
	}

	tests := map[string]string{
		"wrong secret": sign(valid(nil), jwt.SigningMethodHS256, []byte("other")),
		"expired": sign(valid(func(c *Claims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		}), jwt.SigningMethodHS256, []byte(secret)),
		"no expiry":     sign(valid(func(c *Claims) { c.ExpiresAt = nil }), jwt.SigningMethodHS256, []byte(secret)),
		"wrong issuer":  sign(valid(func(c *Claims) { c.Issuer = "someone-else" }), jwt.SigningMethodHS256, []byte(secret)),
		"unknown role":  sign(valid(func(c *Claims) { c.Role = "admin" }), jwt.SigningMethodHS256, []byte(secret)),
		"empty subject": sign(valid(func(c *Claims) { c.Subject = " " }), jwt.SigningMethodHS256, []byte(secret)),
		"alg none":      sign(valid(nil), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType),
		"garbage":       "not.a.jwt",
		"wrong hs alg":  sign(valid(nil), jwt.SigningMethodHS512, []byte(secret)),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	token, ok = BearerToken("  bearer   abc ")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	for _, bad := range []string{"", "Bearer", "Bearer  ", "Basic abc", "abc"} {
		_, ok := BearerToken(bad)
		assert.False(t, ok, "header %q", bad)
	}

	_, err := NewVerifier(secret, "").VerifyHeader("Basic abc")
	require.ErrorIs(t, err, ErrMissingToken)
}
