package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-tools/todomcp/internal/apperr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

type fixedKeyProvider struct {
	key *rsa.PrivateKey
}

func (f fixedKeyProvider) Keyfunc(_ *jwt.Token) (any, error) {
	return &f.key.PublicKey, nil
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.RegisteredClaims, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestGateVerify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	gate := NewGate(fixedKeyProvider{key: key}, "todomcp", 60*time.Second, discardLogger())

	t.Run("valid token returns subject", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "todomcp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		subject, err := gate.Verify(context.Background(), signToken(t, key, claims, "k1"))
		require.NoError(t, err)
		require.Equal(t, "user-123", subject)
	})

	t.Run("empty token is unauthorized", func(t *testing.T) {
		_, err := gate.Verify(context.Background(), "")
		appErr := requireAppErr(t, err)
		require.Equal(t, apperr.Unauthorized, appErr.ErrType)
	})

	t.Run("expired token is unauthorized", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "todomcp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}
		_, err := gate.Verify(context.Background(), signToken(t, key, claims, "k1"))
		appErr := requireAppErr(t, err)
		require.Equal(t, apperr.Unauthorized, appErr.ErrType)
	})

	t.Run("missing subject is unauthorized", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Issuer:    "todomcp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		_, err := gate.Verify(context.Background(), signToken(t, key, claims, "k1"))
		appErr := requireAppErr(t, err)
		require.Equal(t, apperr.Unauthorized, appErr.ErrType)
	})

	t.Run("wrong issuer is unauthorized", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		_, err := gate.Verify(context.Background(), signToken(t, key, claims, "k1"))
		appErr := requireAppErr(t, err)
		require.Equal(t, apperr.Unauthorized, appErr.ErrType)
	})
}

func requireAppErr(t *testing.T, err error) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*apperr.Error)
	require.True(t, ok, "expected *apperr.Error, got %T", err)
	return appErr
}
