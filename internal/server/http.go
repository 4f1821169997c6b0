package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"CDPLedger/internal/core"
	"CDPLedger/internal/dex"
	"CDPLedger/internal/event"
	"CDPLedger/internal/ledger"
	"CDPLedger/internal/observability"
	"CDPLedger/internal/oracle"
	"CDPLedger/internal/query"
	"CDPLedger/internal/state"
)

const commandTimeout = 5 * time.Second

// HTTPServer exposes the command and query API. Commands are forwarded
// to the deterministic core through its command channel; queries read
// from the projection tables.
type HTTPServer struct {
	server        *http.Server
	commands      chan<- core.Command
	queryService  *query.QueryService
	healthChecker *observability.HealthChecker
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

func NewHTTPServer(
	addr string,
	commands chan<- core.Command,
	queryService *query.QueryService,
	healthChecker *observability.HealthChecker,
	metrics *observability.Metrics,
) *HTTPServer {
	s := &HTTPServer{
		commands:      commands,
		queryService:  queryService,
		healthChecker: healthChecker,
		metrics:       metrics,
		logger:        observability.NewLogger("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthChecker.LivenessHandler)
	r.Get("/readyz", healthChecker.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/loans/adjust", s.handleAdjustLoan)
		r.Post("/loans/transfer", s.handleTransferLoan)
		r.Post("/loans/close-by-dex", s.handleCloseLoanByDex)

		r.Post("/authorizations", s.handleAuthorize)
		r.Post("/authorizations/revoke", s.handleUnauthorize)
		r.Post("/authorizations/revoke-all", s.handleUnauthorizeAll)

		r.Get("/users/{userID}/balances/{asset}", s.handleGetBalance)
		r.Get("/users/{userID}/positions", s.handleGetPositions)
		r.Get("/users/{userID}/positions/{currencyID}", s.handleGetPosition)
		r.Get("/users/{userID}/grants", s.handleGetGrants)
		r.Get("/users/{userID}/journal", s.handleGetJournal)
		r.Get("/currencies/{currencyID}/totals", s.handleGetTotals)

		r.Post("/admin/pause", s.handlePause)
		r.Get("/admin/integrity", s.handleIntegrity)
	})

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// --- command handlers ---

type adjustLoanRequest struct {
	RequestID       string `json:"request_id,omitempty"`
	Owner           string `json:"owner_id"`
	CurrencyID      string `json:"currency_id"`
	CollateralDelta int64  `json:"collateral_delta"`
	DebitDelta      int64  `json:"debit_delta"`
}

func (s *HTTPServer) handleAdjustLoan(w http.ResponseWriter, r *http.Request) {
	var req adjustLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_owner", err.Error())
		return
	}
	requestID, err := parseOrNewRequestID(req.RequestID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request_id", err.Error())
		return
	}
	if req.CurrencyID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_currency", "currency_id is required")
		return
	}
	if req.CollateralDelta == 0 && req.DebitDelta == 0 {
		s.writeError(w, http.StatusBadRequest, "empty_adjustment", "both deltas are zero")
		return
	}

	s.submit(w, r, &event.AdjustLoan{
		RequestID:       requestID,
		Owner:           owner,
		CurrencyID:      req.CurrencyID,
		CollateralDelta: req.CollateralDelta,
		DebitDelta:      req.DebitDelta,
		Timestamp:       time.Now().UnixMicro(),
	})
}

type transferLoanRequest struct {
	RequestID  string `json:"request_id,omitempty"`
	Caller     string `json:"caller_id"`
	From       string `json:"from_id"`
	CurrencyID string `json:"currency_id"`
}

func (s *HTTPServer) handleTransferLoan(w http.ResponseWriter, r *http.Request) {
	var req transferLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_caller", err.Error())
		return
	}
	from, err := uuid.Parse(req.From)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
		return
	}
	requestID, err := parseOrNewRequestID(req.RequestID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request_id", err.Error())
		return
	}

	s.submit(w, r, &event.TransferLoanFrom{
		RequestID:  requestID,
		Caller:     caller,
		From:       from,
		CurrencyID: req.CurrencyID,
		Timestamp:  time.Now().UnixMicro(),
	})
}

type closeLoanByDexRequest struct {
	RequestID           string   `json:"request_id,omitempty"`
	Owner               string   `json:"owner_id"`
	CurrencyID          string   `json:"currency_id"`
	MaxCollateralAmount int64    `json:"max_collateral_amount"`
	Path                []string `json:"path,omitempty"`
}

func (s *HTTPServer) handleCloseLoanByDex(w http.ResponseWriter, r *http.Request) {
	var req closeLoanByDexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_owner", err.Error())
		return
	}
	requestID, err := parseOrNewRequestID(req.RequestID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request_id", err.Error())
		return
	}

	s.submit(w, r, &event.CloseLoanByDex{
		RequestID:           requestID,
		Owner:               owner,
		CurrencyID:          req.CurrencyID,
		MaxCollateralAmount: req.MaxCollateralAmount,
		Path:                req.Path,
		Timestamp:           time.Now().UnixMicro(),
	})
}

type authorizeRequest struct {
	RequestID  string `json:"request_id,omitempty"`
	Owner      string `json:"owner_id"`
	CurrencyID string `json:"currency_id"`
	Delegate   string `json:"delegate_id"`
}

func (s *HTTPServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	evt, ok := s.parseAuthRequest(w, r)
	if !ok {
		return
	}
	s.submit(w, r, &event.Authorize{
		RequestID:  evt.RequestID,
		Owner:      evt.Owner,
		CurrencyID: evt.CurrencyID,
		Delegate:   evt.Delegate,
		Timestamp:  time.Now().UnixMicro(),
	})
}

func (s *HTTPServer) handleUnauthorize(w http.ResponseWriter, r *http.Request) {
	evt, ok := s.parseAuthRequest(w, r)
	if !ok {
		return
	}
	s.submit(w, r, &event.Unauthorize{
		RequestID:  evt.RequestID,
		Owner:      evt.Owner,
		CurrencyID: evt.CurrencyID,
		Delegate:   evt.Delegate,
		Timestamp:  time.Now().UnixMicro(),
	})
}

type parsedAuth struct {
	RequestID  uuid.UUID
	Owner      uuid.UUID
	CurrencyID string
	Delegate   uuid.UUID
}

func (s *HTTPServer) parseAuthRequest(w http.ResponseWriter, r *http.Request) (parsedAuth, bool) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return parsedAuth{}, false
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_owner", err.Error())
		return parsedAuth{}, false
	}
	delegate, err := uuid.Parse(req.Delegate)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_delegate", err.Error())
		return parsedAuth{}, false
	}
	requestID, err := parseOrNewRequestID(req.RequestID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request_id", err.Error())
		return parsedAuth{}, false
	}
	if owner == delegate {
		s.writeError(w, http.StatusBadRequest, "self_delegation", "owner and delegate are the same account")
		return parsedAuth{}, false
	}
	return parsedAuth{
		RequestID:  requestID,
		Owner:      owner,
		CurrencyID: req.CurrencyID,
		Delegate:   delegate,
	}, true
}

type unauthorizeAllRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Owner     string `json:"owner_id"`
}

func (s *HTTPServer) handleUnauthorizeAll(w http.ResponseWriter, r *http.Request) {
	var req unauthorizeAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_owner", err.Error())
		return
	}
	requestID, err := parseOrNewRequestID(req.RequestID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request_id", err.Error())
		return
	}

	s.submit(w, r, &event.UnauthorizeAll{
		RequestID: requestID,
		Owner:     owner,
		Timestamp: time.Now().UnixMicro(),
	})
}

type pauseRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Paused    bool   `json:"paused"`
}

func (s *HTTPServer) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	requestID, err := parseOrNewRequestID(req.RequestID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request_id", err.Error())
		return
	}

	s.submit(w, r, &event.EmergencyPause{
		RequestID: requestID,
		Paused:    req.Paused,
		Timestamp: time.Now().UnixMicro(),
	})
}

type commandResponse struct {
	Sequence  int64                   `json:"sequence"`
	StateHash string                  `json:"state_hash"`
	Position  *query.PositionResponse `json:"position,omitempty"`
}

// submit forwards the event to the core and waits for the reply.
func (s *HTTPServer) submit(w http.ResponseWriter, r *http.Request, evt event.Event) {
	reply := make(chan core.CommandResult, 1)
	cmd := core.Command{Event: evt, AssignSource: true, Reply: reply}

	select {
	case s.commands <- cmd:
	case <-r.Context().Done():
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", "request cancelled")
		return
	case <-time.After(commandTimeout):
		s.writeError(w, http.StatusServiceUnavailable, "overloaded", "command queue full")
		return
	}

	select {
	case result := <-reply:
		if result.Err != nil {
			status, code := mapCommandError(result.Err)
			s.writeError(w, status, code, result.Err.Error())
			return
		}
		resp := commandResponse{
			Sequence:  result.Sequence,
			StateHash: hexHash(result.StateHash),
		}
		if result.Position != nil {
			resp.Position = &query.PositionResponse{
				Owner:        result.Position.Owner,
				CurrencyID:   result.Position.CurrencyID,
				Collateral:   result.Position.Collateral,
				Debit:        result.Position.Debit,
				State:        result.Position.State.String(),
				Version:      result.Position.Version,
				AsOfSequence: result.Sequence,
			}
		}
		s.writeJSON(w, http.StatusOK, resp)
	case <-r.Context().Done():
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", "request cancelled")
	case <-time.After(commandTimeout):
		s.writeError(w, http.StatusGatewayTimeout, "timeout", "core did not reply in time")
	}
}

// --- query handlers ---

func (s *HTTPServer) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	asset := chi.URLParam(r, "asset")

	resp, err := s.queryService.GetBalance(r.Context(), userID, asset)
	if err != nil {
		s.queryFailed(w, "balance", err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUUID(w, r, "userID")
	if !ok {
		return
	}

	positions, err := s.queryService.GetPositions(r.Context(), userID)
	if err != nil {
		s.queryFailed(w, "positions", err)
		return
	}
	if positions == nil {
		positions = []query.PositionResponse{}
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *HTTPServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	currencyID := chi.URLParam(r, "currencyID")

	position, err := s.queryService.GetPosition(r.Context(), userID, currencyID)
	if err != nil {
		s.queryFailed(w, "position", err)
		return
	}
	if position == nil {
		s.writeError(w, http.StatusNotFound, "no_position", "no position for currency and owner")
		return
	}
	s.writeJSON(w, http.StatusOK, position)
}

func (s *HTTPServer) handleGetGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	includeRevoked := r.URL.Query().Get("include_revoked") == "true"

	grants, err := s.queryService.GetGrants(r.Context(), userID, includeRevoked)
	if err != nil {
		s.queryFailed(w, "grants", err)
		return
	}
	if grants == nil {
		grants = []query.GrantResponse{}
	}
	s.writeJSON(w, http.StatusOK, grants)
}

func (s *HTTPServer) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUUID(w, r, "userID")
	if !ok {
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be 1-1000")
			return
		}
		limit = n
	}

	var afterSeq *int64
	if v := r.URL.Query().Get("after_sequence"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_cursor", err.Error())
			return
		}
		afterSeq = &n
	}

	entries, err := s.queryService.GetJournalHistory(r.Context(), userID, limit, afterSeq)
	if err != nil {
		s.queryFailed(w, "journal", err)
		return
	}
	if entries == nil {
		entries = []query.JournalHistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *HTTPServer) handleGetTotals(w http.ResponseWriter, r *http.Request) {
	currencyID := chi.URLParam(r, "currencyID")

	totals, err := s.queryService.GetTotals(r.Context(), currencyID)
	if err != nil {
		s.queryFailed(w, "totals", err)
		return
	}
	s.writeJSON(w, http.StatusOK, totals)
}

func (s *HTTPServer) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queryService.VerifyIntegrity(r.Context())
	if err != nil {
		s.queryFailed(w, "integrity", err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// --- helpers ---

func parseOrNewRequestID(v string) (uuid.UUID, error) {
	if v == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(v)
}

func (s *HTTPServer) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_"+param, err.Error())
		return uuid.UUID{}, false
	}
	return id, true
}

func (s *HTTPServer) queryFailed(w http.ResponseWriter, endpoint string, err error) {
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(endpoint, "internal").Inc()
	}
	s.logger.Error().Str("endpoint", endpoint).Err(err).Msg("query failed")
	s.writeError(w, http.StatusInternalServerError, "internal", "query failed")
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func hexHash(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// mapCommandError translates core rejections into HTTP status and a
// stable machine-readable code.
func mapCommandError(err error) (int, string) {
	switch {
	case errors.Is(err, state.ErrSystemPaused):
		return http.StatusServiceUnavailable, "paused"
	case errors.Is(err, state.ErrNoPosition):
		return http.StatusNotFound, "no_position"
	case errors.Is(err, state.ErrNoDebit):
		return http.StatusConflict, "no_debit"
	case errors.Is(err, state.ErrBelowRequiredCollateralRatio):
		return http.StatusConflict, "below_required_collateral_ratio"
	case errors.Is(err, state.ErrRemainDebitValueTooSmall):
		return http.StatusConflict, "remain_debit_value_too_small"
	case errors.Is(err, state.ErrExceedDebitValueHardCap):
		return http.StatusConflict, "exceed_debit_value_hard_cap"
	case errors.Is(err, state.ErrNoPermission):
		return http.StatusForbidden, "no_permission"
	case errors.Is(err, state.ErrNotAuthorized):
		return http.StatusNotFound, "not_authorized"
	case errors.Is(err, state.ErrInvalidCurrency):
		return http.StatusBadRequest, "invalid_currency"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, oracle.ErrNoPrice):
		return http.StatusConflict, "no_price"
	case errors.Is(err, dex.ErrInvalidPath):
		return http.StatusBadRequest, "invalid_swap_path"
	case errors.Is(err, dex.ErrNoAvailableDexPath):
		return http.StatusConflict, "no_available_dex_path"
	case errors.Is(err, dex.ErrCannotSwap):
		return http.StatusConflict, "cannot_swap"
	default:
		return http.StatusUnprocessableEntity, "rejected"
	}
}
