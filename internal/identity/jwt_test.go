package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/pkg/types"
)

const testSecret = "correct-horse-battery-staple"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, c jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, c).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestNewJWTVerifier_RequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestJWTVerifier_IssuedTokenRoundTrip(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	token, err := IssueToken(testSecret, types.Identity{UserID: "u-1", Email: "ada@example.com"}, time.Hour)
	require.NoError(t, err)

	identity, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.UserID)
	assert.Equal(t, "ada@example.com", identity.Email)
}

func TestJWTVerifier_LegacyIDClaim(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"_id":   "64b7f0c2a1b2c3d4e5f60718",
		"email": "grace@example.com",
		"sub":   "ignored",
	})

	identity, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", identity.UserID)
}

func TestJWTVerifier_Rejections(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	expired := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "u-1", "email": "ada@example.com",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	wrongKey := sign(t, jwt.SigningMethodHS256, []byte("other-secret"), jwt.MapClaims{
		"sub": "u-1", "email": "ada@example.com",
	})
	noneAlg := sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{
		"sub": "u-1", "email": "ada@example.com",
	})

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"expired", expired},
		{"wrong key", wrongKey},
		{"unsigned", noneAlg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := verifier.Verify(context.Background(), tt.token)
			assert.Nil(t, identity)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTVerifier_MissingClaims(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	noEmail := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u-1"})
	_, err = verifier.Verify(context.Background(), noEmail)
	assert.ErrorIs(t, err, ErrMissingClaim)

	empty := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u-1", "email": ""})
	_, err = verifier.Verify(context.Background(), empty)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestJWTVerifier_EmailOnlyToken(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"email": "ada@example.com"})
	identity, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", identity.UserID)
	assert.Equal(t, "ada@example.com", identity.Email)
}

func TestJWTVerifier_IssuerAndLeeway(t *testing.T) {
	now := time.Now()
	verifier, err := NewJWTVerifier(testSecret,
		WithIssuer("accounts"),
		WithLeeway(30*time.Second),
		withClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	justExpired := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "u-1", "email": "ada@example.com", "iss": "accounts",
		"exp": now.Add(-10 * time.Second).Unix(),
	})
	_, err = verifier.Verify(context.Background(), justExpired)
	assert.NoError(t, err, "inside leeway")

	wrongIssuer := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "u-1", "email": "ada@example.com", "iss": "someone-else",
	})
	_, err = verifier.Verify(context.Background(), wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
