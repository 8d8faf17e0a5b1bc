// Package identity implements the Identity Gate (spec.md §4.1): verifying
// the bearer credential carried by a tool invocation and producing the
// verified subject that the Authorization Guard later reconciles against
// the caller-supplied user_id (spec.md §4.4, §9).
package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kestrel-tools/todomcp/internal/apperr"
)

type contextKey struct{}

var subjectKey = contextKey{}

// WithSubject attaches a verified subject to ctx.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFrom extracts the verified subject from ctx, or "" if absent.
func SubjectFrom(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}

// KeyProvider resolves the verification key for a token, given its header
// (so JWKS providers can select by "kid").
type KeyProvider interface {
	Keyfunc(token *jwt.Token) (any, error)
}

// Gate verifies bearer credentials with asymmetric signature checking
// (spec.md §4.1) and emits the `{event:"auth", outcome, reason?}` record.
type Gate struct {
	keys   KeyProvider
	issuer string
	skew   time.Duration
	logger *slog.Logger
}

// NewGate creates an Identity Gate. issuer may be empty to skip issuer
// pinning. skew bounds how far exp/nbf may diverge from server time
// (spec.md §4.1: ≤ 60 seconds).
func NewGate(keys KeyProvider, issuer string, skew time.Duration, logger *slog.Logger) *Gate {
	return &Gate{keys: keys, issuer: issuer, skew: skew, logger: logger}
}

// Verify checks a bearer token and returns its subject claim. Any failure —
// missing, malformed, unsigned by the configured issuer, expired, or
// lacking a subject claim — surfaces as an unauthorized apperr.Error
// (spec.md §4.1).
func (g *Gate) Verify(_ context.Context, bearerToken string) (string, error) {
	if bearerToken == "" {
		g.logAuth("failure", "missing credential")
		return "", apperr.Unauthorizedf("missing credential")
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(g.skew),
		jwt.WithExpirationRequired(),
	}
	if g.issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.issuer))
	}

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(bearerToken, &claims, g.keys.Keyfunc, opts...)
	if err != nil || !token.Valid {
		g.logAuth("failure", "signature or claim validation failed")
		return "", apperr.Unauthorizedf("invalid or expired credential")
	}

	if claims.Subject == "" {
		g.logAuth("failure", "credential missing subject claim")
		return "", apperr.Unauthorizedf("credential missing subject claim")
	}

	g.logAuth("success", "")
	return claims.Subject, nil
}

func (g *Gate) logAuth(outcome, reason string) {
	if g.logger == nil {
		return
	}
	if reason == "" {
		g.logger.Info("auth", "event", "auth", "outcome", outcome)
		return
	}
	g.logger.Info("auth", "event", "auth", "outcome", outcome, "reason", reason)
}
