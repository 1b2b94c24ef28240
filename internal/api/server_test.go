package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
	apperrors "github.com/Proton-105/devotion/internal/errors"
	"github.com/Proton-105/devotion/internal/idempotency"
	"github.com/Proton-105/devotion/internal/lifecycle"
	"github.com/Proton-105/devotion/internal/middleware"
	"github.com/Proton-105/devotion/internal/ratelimit"
	"github.com/Proton-105/devotion/internal/repository"
	"github.com/Proton-105/devotion/pkg/config"
)

type testEnv struct {
	server *Server
	engine *devotion.Engine
	clock  *clockwork.FakeClock
	probes *lifecycle.Probes
	admin  solana.PublicKey
	user   solana.PublicKey
	mint   solana.PublicKey
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, limits config.RateLimitConfig) *testEnv {
	t.Helper()

	ctx := context.Background()
	log := discardLogger()
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))

	engine := devotion.NewEngine(repository.NewMemoryStore(), solana.NewWallet().PublicKey(), log,
		devotion.WithClock(clock),
		devotion.WithDeposits(devotion.Deposits{Record: 10, Vault: 20}),
	)

	env := &testEnv{
		engine: engine,
		clock:  clock,
		probes: lifecycle.NewProbes(nil, log),
		admin:  solana.NewWallet().PublicKey(),
		user:   solana.NewWallet().PublicKey(),
		mint:   solana.NewWallet().PublicKey(),
	}

	require.NoError(t, engine.RegisterMint(ctx, domain.Mint{Address: env.mint, Decimals: 6}))
	_, err := engine.Fund(ctx, env.user, 30)
	require.NoError(t, err)
	_, err = engine.FundTokens(ctx, env.user, env.mint, 1_000_000_000_000)
	require.NoError(t, err)

	limiter := ratelimit.NewMemoryLimiter(clock, log)
	env.server = NewServer(Deps{
		Ledger:       engine,
		Probes:       env.probes,
		RateLimit:    middleware.NewRateLimitMiddleware(limiter, ratelimit.NewRules(limits), clock, log),
		Idempotency:  idempotency.NewManager(idempotency.NewMemoryStore(clock), time.Hour, time.Minute, log),
		ErrorHandler: apperrors.NewHandler(log, false),
		Log:          log,
	})
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, caller solana.PublicKey, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if !caller.IsZero() {
		req.Header.Set(middleware.CallerHeader, caller.String())
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) initialize(t *testing.T) {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/v1/initialize", env.admin, map[string]any{
		"stake_mint":          env.mint.String(),
		"interval":            86_400,
		"max_devotion_charge": 15_552_000,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_StakingLifecycle(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})
	env.initialize(t)

	cfg := decodeBody[configView](t, env.do(t, http.MethodGet, "/v1/config", solana.PublicKey{}, nil, nil))
	assert.Equal(t, env.admin.String(), cfg.Admin)
	assert.Equal(t, uint8(6), cfg.Decimals)

	rec := env.do(t, http.MethodPost, "/v1/devote", env.user, map[string]any{"amount": "600000000000"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	devote := decodeBody[devoteView](t, rec)
	assert.True(t, devote.Opened)
	assert.Equal(t, "600000000000", devote.Amount)

	env.clock.Advance(24 * time.Hour)

	score := decodeBody[scoreView](t, env.do(t, http.MethodGet, "/v1/devotion/"+env.user.String()+"/score", solana.PublicKey{}, nil, nil))
	assert.Equal(t, "600000", score.Devotion)

	position := decodeBody[positionView](t, env.do(t, http.MethodGet, "/v1/devotion/"+env.user.String(), solana.PublicKey{}, nil, nil))
	assert.Equal(t, "600000.000000", position.AmountUI)
	assert.Equal(t, "600000", position.Devotion)

	rec = env.do(t, http.MethodPost, "/v1/waver", env.user, map[string]any{"amount_ui": "100000"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	waver := decodeBody[waverView](t, rec)
	assert.Equal(t, "100000000000", waver.Withdrawn)
	assert.Equal(t, "500000000000", waver.Remaining)

	agg := decodeBody[aggregateView](t, env.do(t, http.MethodGet, "/v1/aggregate", solana.PublicKey{}, nil, nil))
	assert.Equal(t, "500000000000", agg.TotalStaked)
	assert.Equal(t, "500000.000000", agg.TotalStakedUI)

	rec = env.do(t, http.MethodPost, "/v1/heresy", env.user, map[string]any{}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	heresy := decodeBody[heresyView](t, rec)
	assert.Equal(t, "500000000000", heresy.Returned)
	assert.Equal(t, "30", heresy.Refunded)

	rec = env.do(t, http.MethodGet, "/v1/devotion/"+env.user.String(), solana.PublicKey{}, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	testCases := []struct {
		name   string
		setup  func(t *testing.T)
		method string
		path   string
		caller solana.PublicKey
		body   any
		status int
		code   string
	}{
		{
			name:   "not initialized",
			method: http.MethodGet,
			path:   "/v1/config",
			status: http.StatusConflict,
			code:   apperrors.CodeNotInitialized,
		},
		{
			name:   "missing caller",
			method: http.MethodPost,
			path:   "/v1/devote",
			body:   map[string]any{"amount": "1"},
			status: http.StatusUnauthorized,
			code:   apperrors.CodeUnauthorized,
		},
		{
			name:   "already initialized",
			setup:  env.initialize,
			method: http.MethodPost,
			path:   "/v1/initialize",
			caller: env.admin,
			body:   map[string]any{"stake_mint": env.mint.String(), "interval": 1, "max_devotion_charge": 1},
			status: http.StatusConflict,
			code:   apperrors.CodeAlreadyInitialized,
		},
		{
			name:   "non numeric amount",
			method: http.MethodPost,
			path:   "/v1/devote",
			caller: env.user,
			body:   map[string]any{"amount": "-5"},
			status: http.StatusBadRequest,
			code:   apperrors.CodeValidation,
		},
		{
			name:   "amount and amount_ui together",
			method: http.MethodPost,
			path:   "/v1/devote",
			caller: env.user,
			body:   map[string]any{"amount": "5", "amount_ui": "5"},
			status: http.StatusBadRequest,
			code:   apperrors.CodeValidation,
		},
		{
			name:   "too many fractional digits",
			method: http.MethodPost,
			path:   "/v1/devote",
			caller: env.user,
			body:   map[string]any{"amount_ui": "0.0000001"},
			status: http.StatusBadRequest,
			code:   apperrors.CodeValidation,
		},
		{
			name:   "unknown field",
			method: http.MethodPost,
			path:   "/v1/devote",
			caller: env.user,
			body:   map[string]any{"amount": "5", "lamports": 1},
			status: http.StatusBadRequest,
			code:   apperrors.CodeValidation,
		},
		{
			name:   "insufficient tokens",
			method: http.MethodPost,
			path:   "/v1/devote",
			caller: env.user,
			body:   map[string]any{"amount": "1000000000001"},
			status: http.StatusUnprocessableEntity,
			code:   apperrors.CodeInsufficientBalance,
		},
		{
			name:   "waver without a position",
			method: http.MethodPost,
			path:   "/v1/waver",
			caller: solana.NewWallet().PublicKey(),
			body:   map[string]any{"amount": "1"},
			status: http.StatusNotFound,
			code:   apperrors.CodeNotFound,
		},
		{
			name:   "foreign vault",
			method: http.MethodPost,
			path:   "/v1/heresy",
			caller: env.user,
			body:   map[string]any{"accounts": map[string]any{"vault": solana.NewWallet().PublicKey().String()}},
			status: http.StatusForbidden,
			code:   apperrors.CodeUnauthorized,
		},
		{
			name:   "bad owner",
			method: http.MethodGet,
			path:   "/v1/devotion/not-a-key/score",
			status: http.StatusBadRequest,
			code:   apperrors.CodeValidation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup(t)
			}

			rec := env.do(t, tc.method, tc.path, tc.caller, tc.body, nil)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())

			body := decodeBody[middleware.ErrorBody](t, rec)
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestServer_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})
	env.initialize(t)

	headers := map[string]string{middleware.IdempotencyKeyHeader: "devote-1"}
	body := map[string]any{"amount": "1000"}

	first := env.do(t, http.MethodPost, "/v1/devote", env.user, body, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get(middleware.ReplayedHeader))

	second := env.do(t, http.MethodPost, "/v1/devote", env.user, body, headers)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(middleware.ReplayedHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	position, err := env.engine.Position(context.Background(), env.user)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), position.Amount)

	reused := env.do(t, http.MethodPost, "/v1/devote", env.user, map[string]any{"amount": "2000"}, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)
}

func TestServer_OperationRateLimit(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{
		Enabled: true,
		Operations: config.OperationLimits{
			Devote: config.RateLimitRule{Limit: 2, Window: "1m"},
		},
	})
	env.initialize(t)

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/v1/devote", env.user, map[string]any{"amount": "1"}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodPost, "/v1/devote", env.user, map[string]any{"amount": "1"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, apperrors.CodeRateLimit, decodeBody[middleware.ErrorBody](t, rec).Code)

	env.clock.Advance(time.Minute + time.Second)
	rec = env.do(t, http.MethodPost, "/v1/devote", env.user, map[string]any{"amount": "1"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Probes(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/livez", solana.PublicKey{}, nil, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", solana.PublicKey{}, nil, nil).Code)

	require.NoError(t, env.probes.Drain(context.Background()))
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/readyz", solana.PublicKey{}, nil, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/livez", solana.PublicKey{}, nil, nil).Code)
}

func TestCountsAgainstBreaker(t *testing.T) {
	assert.False(t, countsAgainstBreaker(nil))
	assert.False(t, countsAgainstBreaker(devotion.ErrInsufficientBalance))
	assert.False(t, countsAgainstBreaker(context.Canceled))
	assert.False(t, countsAgainstBreaker(apperrors.NewValidationError("bad")))
	assert.True(t, countsAgainstBreaker(io.ErrUnexpectedEOF))
}
