package middleware

import (
	"context"
	"net/http"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/Proton-105/devotion/internal/errors"
)

// CallerHeader carries the caller's public key. The fronting gateway is
// expected to set it only after verifying the caller's signature.
const CallerHeader = "X-Caller-Pubkey"

type callerKey struct{}

// CallerFromContext returns the authenticated caller stored by RequireCaller.
func CallerFromContext(ctx context.Context) (solana.PublicKey, bool) {
	caller, ok := ctx.Value(callerKey{}).(solana.PublicKey)
	return caller, ok
}

// WithCaller stores caller in ctx.
func WithCaller(ctx context.Context, caller solana.PublicKey) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// RequireCaller rejects requests without a valid caller public key.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(CallerHeader)
		if raw == "" {
			WriteError(w, http.StatusUnauthorized, apperrors.CodeUnauthorized, "missing "+CallerHeader+" header")
			return
		}

		caller, err := solana.PublicKeyFromBase58(raw)
		if err != nil || caller.IsZero() {
			WriteError(w, http.StatusUnauthorized, apperrors.CodeUnauthorized, "invalid "+CallerHeader+" header")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}
