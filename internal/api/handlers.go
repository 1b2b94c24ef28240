package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/Proton-105/devotion/internal/devotion"
	"github.com/Proton-105/devotion/internal/domain"
	apperrors "github.com/Proton-105/devotion/internal/errors"
	"github.com/Proton-105/devotion/internal/fixedpoint"
	"github.com/Proton-105/devotion/internal/health"
	"github.com/Proton-105/devotion/internal/middleware"
)

const maxRequestBody = 64 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{})
		return
	}

	results := s.health.Check(r.Context())
	status := http.StatusOK
	for _, result := range results {
		if result != health.StatusOK {
			status = http.StatusServiceUnavailable
			break
		}
	}
	middleware.WriteJSON(w, status, results)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.probe(w, r, func() error {
		if s.probes == nil {
			return nil
		}
		return s.probes.Liveness(r.Context())
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.probe(w, r, func() error {
		if s.probes == nil {
			return nil
		}
		return s.probes.Readiness(r.Context())
	})
}

func (s *Server) probe(w http.ResponseWriter, _ *http.Request, check func() error) {
	if err := check(); err != nil {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": err.Error()})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": health.StatusOK})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var cfg *domain.Config
	err := s.call(func() (err error) {
		cfg, err = s.ledger.Config(r.Context())
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newConfigView(cfg))
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var (
		agg *domain.Aggregate
		cfg *domain.Config
	)
	err := s.call(func() (err error) {
		if agg, err = s.ledger.Aggregate(r.Context()); err != nil {
			return err
		}
		cfg, err = s.ledger.Config(r.Context())
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, aggregateView{
		TotalStaked:   raw(agg.TotalStaked),
		TotalStakedUI: fixedpoint.Format(agg.TotalStaked, cfg.Decimals),
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var position *devotion.Position
	err = s.call(func() (err error) {
		position, err = s.ledger.Position(r.Context(), owner)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newPositionView(position))
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var score uint64
	err = s.call(func() (err error) {
		score, err = s.ledger.CheckDevotion(r.Context(), owner)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, scoreView{Owner: owner.String(), Devotion: raw(score)})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	caller, _ := middleware.CallerFromContext(r.Context())
	params := devotion.InitializeParams{
		Admin:             caller,
		StakeMint:         req.StakeMint,
		Interval:          req.Interval,
		MaxDevotionCharge: req.MaxDevotionCharge,
	}

	var cfg *domain.Config
	err := s.call(func() (err error) {
		cfg, err = s.ledger.Initialize(r.Context(), params)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, newConfigView(cfg))
}

func (s *Server) handleDevote(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	amount, err := s.amount(r, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	caller, _ := middleware.CallerFromContext(r.Context())
	var receipt *devotion.DevoteReceipt
	err = s.call(func() (err error) {
		receipt, err = s.ledger.Devote(r.Context(), caller, amount, req.Accounts.toAccounts())
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newDevoteView(receipt))
}

func (s *Server) handleWaver(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	amount, err := s.amount(r, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	caller, _ := middleware.CallerFromContext(r.Context())
	var receipt *devotion.WaverReceipt
	err = s.call(func() (err error) {
		receipt, err = s.ledger.Waver(r.Context(), caller, amount, req.Accounts.toAccounts())
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newWaverView(receipt))
}

func (s *Server) handleHeresy(w http.ResponseWriter, r *http.Request) {
	var req heresyRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	caller, _ := middleware.CallerFromContext(r.Context())
	var receipt *devotion.HeresyReceipt
	err := s.call(func() (err error) {
		receipt, err = s.ledger.Heresy(r.Context(), caller, req.Accounts.toAccounts())
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newHeresyView(receipt))
}

// decode reads a JSON body into dst and validates it. An empty body decodes
// to the zero request.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.NewValidationError(fmt.Sprintf("malformed request body: %v", err))
	}

	if err := s.validate.Struct(dst); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}

// amount resolves the raw amount of req. amount_ui is scaled by the stake
// mint decimals.
func (s *Server) amount(r *http.Request, req amountRequest) (uint64, error) {
	switch {
	case req.Amount != "" && req.AmountUI != "":
		return 0, apperrors.NewValidationError("amount and amount_ui are mutually exclusive")
	case req.Amount != "":
		amount, err := strconv.ParseUint(req.Amount, 10, 64)
		if err != nil {
			return 0, apperrors.NewValidationError(fmt.Sprintf("amount %q is not a 64-bit unsigned integer", req.Amount))
		}
		return amount, nil
	case req.AmountUI != "":
		var cfg *domain.Config
		err := s.call(func() (err error) {
			cfg, err = s.ledger.Config(r.Context())
			return err
		})
		if err != nil {
			return 0, err
		}
		amount, err := fixedpoint.Parse(req.AmountUI, cfg.Decimals)
		if err != nil {
			return 0, apperrors.NewValidationError(fmt.Sprintf("amount_ui: %v", err))
		}
		return amount, nil
	default:
		return 0, apperrors.NewValidationError("amount or amount_ui is required")
	}
}

func ownerParam(r *http.Request) (solana.PublicKey, error) {
	owner, err := solana.PublicKeyFromBase58(chi.URLParam(r, "owner"))
	if err != nil {
		return solana.PublicKey{}, apperrors.NewValidationError(fmt.Sprintf("invalid owner: %v", err))
	}
	return owner, nil
}
