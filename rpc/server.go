package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	nativecommon "creditvault/native/common"
	"creditvault/native/credit"
	"creditvault/observability/logging"
	"creditvault/observability/metrics"
)

// Server exposes the credit engine over HTTP: account queries, multicall
// submission and closure, plus health and metrics endpoints.
type Server struct {
	engine *credit.Engine
	config *credit.Configurator
	pool   *credit.LedgerPool
	log    *slog.Logger
}

// NewServer wires the HTTP surface over a booted engine.
func NewServer(engine *credit.Engine, configurator *credit.Configurator, pool *credit.LedgerPool, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, config: configurator, pool: pool, log: log}
}

// maxRequestBody bounds JSON request payloads.
const maxRequestBody = 1 << 20

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			req.Body = http.MaxBytesReader(w, req.Body, maxRequestBody)
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/credit", func(cr chi.Router) {
		cr.Post("/accounts", s.handleOpenAccount)
		cr.Get("/accounts/{address}", s.handleGetAccount)
		cr.Post("/accounts/{address}/multicall", s.handleMulticall)
		cr.Post("/accounts/{address}/close", s.handleClose)
		cr.Get("/pool", s.handlePool)
		cr.Post("/admin/pause", s.handlePause)
		cr.Post("/admin/unpause", s.handleUnpause)
	})

	return r
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var env errorEnvelope
	env.Error.Message = err.Error()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_ = json.NewEncoder(w).Encode(env)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps engine errors onto HTTP status codes: authorization failures
// to 403, validation to 400, solvency and state conflicts to 409, absence to
// 404.
func statusFor(err error) int {
	var noPerm *credit.NoPermissionError
	switch {
	case errors.Is(err, credit.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, credit.ErrCallerNotOwner),
		errors.Is(err, credit.ErrCallerNotConfigurator),
		errors.Is(err, credit.ErrCallerNotPausableAdmin),
		errors.Is(err, credit.ErrCallerNotController),
		errors.Is(err, credit.ErrNotApprovedBot),
		errors.Is(err, credit.ErrOnlyEmergencyLiquidators),
		errors.As(err, &noPerm):
		return http.StatusForbidden
	case errors.Is(err, credit.ErrNotEnoughCollateral),
		errors.Is(err, credit.ErrNotLiquidatable),
		errors.Is(err, credit.ErrNotExpired),
		errors.Is(err, credit.ErrAccountInUse),
		errors.Is(err, credit.ErrDebtUpdatedTwiceInOneBlock),
		errors.Is(err, credit.ErrCloseAccountInSameBlock),
		errors.Is(err, credit.ErrBalanceLessThanExpected),
		errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusConflict
	case errors.Is(err, credit.ErrEngineNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("invalid address")
	}
	return common.HexToAddress(raw), nil
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	acc, err := s.engine.GetCreditAccount(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cdd, err := s.engine.CalcDebtAndCollateral(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	liquidatable, err := s.engine.IsLiquidatable(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accountResponse{
		Account:         addr.Hex(),
		Owner:           acc.Owner.Hex(),
		Principal:       cdd.Principal.String(),
		AccruedInterest: cdd.AccruedInterest.String(),
		AccruedFees:     cdd.AccruedFees.String(),
		TotalValue:      cdd.TotalValue.String(),
		TWV:             cdd.TWV.String(),
		Liquidatable:    liquidatable,
	})
}

func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	debt, err := parseAmount(req.Debt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	actions, err := decodeActions(req.Actions)
	if err != nil {
		s.writeError(w, err)
		return
	}
	handle, err := s.engine.OpenCreditAccount(owner, debt, actions)
	if err != nil {
		s.log.Warn("open account rejected", "error", err.Error(), logging.MaskField("owner", req.Owner))
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"account": handle.Hex()})
}

func (s *Server) handleMulticall(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req multicallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	actions, err := decodeActions(req.Actions)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.AsBot {
		err = s.engine.BotMulticall(caller, addr, actions)
	} else {
		err = s.engine.RunMulticall(caller, addr, actions)
	}
	if err != nil {
		metrics.Credit().ObserveMulticall("rejected")
		s.log.Warn("multicall rejected", "error", err.Error(), logging.MaskField("caller", req.Caller))
		s.writeError(w, err)
		return
	}
	metrics.Credit().ObserveMulticall("committed")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	to := caller
	if req.To != "" {
		if to, err = parseAddress(req.To); err != nil {
			s.writeError(w, err)
			return
		}
	}
	kind, err := parseClosureKind(req.Kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var skip credit.TokenMask
	for _, bit := range req.SkipBits {
		skip = skip.Enable(bit)
	}
	remaining, loss, err := s.engine.CloseCreditAccount(caller, addr, kind, caller, to, skip, req.ConvertToNative)
	if err != nil {
		s.writeError(w, err)
		return
	}
	metrics.Credit().ObserveClosure(kind.String())
	if loss.Sign() > 0 {
		metrics.Credit().ObserveLoss(s.engine.CumulativeLoss())
	}
	s.writeJSON(w, http.StatusOK, closeResponse{
		RemainingFunds: remaining.String(),
		Loss:           loss.String(),
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handlePauseSwitch(w, r, s.config.Pause, "paused")
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.handlePauseSwitch(w, r, s.config.Unpause, "running")
}

func (s *Server) handlePauseSwitch(w http.ResponseWriter, r *http.Request, flip func(common.Address) error, state string) {
	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := flip(caller); err != nil {
		s.log.Warn("pause switch rejected", "error", err.Error(), logging.MaskField("caller", req.Caller))
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": state})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		s.writeError(w, credit.ErrEngineNotConfigured)
		return
	}
	metrics.Credit().SetBorrowed(s.pool.Borrowed())
	s.writeJSON(w, http.StatusOK, poolResponse{
		Available:   s.pool.Available().String(),
		Borrowed:    s.pool.Borrowed().String(),
		BorrowIndex: s.pool.BorrowIndex().String(),
	})
}
