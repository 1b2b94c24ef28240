package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	apperrors "github.com/Proton-105/devotion/internal/errors"
	"github.com/Proton-105/devotion/internal/idempotency"
)

const (
	// IdempotencyKeyHeader names the client-chosen key of a retryable write.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from the idempotency store.
	ReplayedHeader = "Idempotent-Replayed"

	maxIdempotentBody = 1 << 20
)

var errServerFailure = errors.New("handler failed with a server error")

// Idempotency replays the stored response for a repeated Idempotency-Key. Keys
// are scoped to the caller and path. 5xx responses are not stored.
func Idempotency(manager idempotency.Manager, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if manager == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
			if err != nil {
				WriteError(w, http.StatusBadRequest, apperrors.CodeValidation, "could not read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller, _ := CallerFromContext(r.Context())
			key := idempotency.GenerateKey(caller.String(), r.Method, r.URL.Path, clientKey)

			var recorded *httptest.ResponseRecorder
			result, err := manager.Execute(r.Context(), key, idempotency.Fingerprint(body), func(ctx context.Context) (*idempotency.Response, error) {
				recorded = httptest.NewRecorder()
				next.ServeHTTP(recorded, r.WithContext(ctx))
				if recorded.Code >= http.StatusInternalServerError {
					return nil, errServerFailure
				}
				return &idempotency.Response{StatusCode: recorded.Code, Body: recorded.Body.Bytes()}, nil
			})

			switch {
			case errors.Is(err, errServerFailure):
				copyRecorded(w, recorded)
			case errors.Is(err, idempotency.ErrRequestInProgress):
				appErr := apperrors.NewInProgressError(err)
				WriteError(w, http.StatusConflict, appErr.Code, appErr.UserMessage)
			case errors.Is(err, idempotency.ErrKeyReused):
				WriteError(w, http.StatusUnprocessableEntity, apperrors.CodeValidation, err.Error())
			case err != nil:
				log.Error("idempotency store failed", slog.String("key", clientKey), slog.Any("error", err))
				appErr := apperrors.NewUnavailableError("idempotency store", err)
				WriteError(w, http.StatusServiceUnavailable, appErr.Code, appErr.UserMessage)
			default:
				if result.FromCache {
					w.Header().Set(ReplayedHeader, "true")
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(result.Response.StatusCode)
				_, _ = w.Write(result.Response.Body)
			}
		})
	}
}

func copyRecorded(w http.ResponseWriter, recorded *httptest.ResponseRecorder) {
	for key, values := range recorded.Header() {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(recorded.Code)
	_, _ = recorded.Body.WriteTo(w)
}
