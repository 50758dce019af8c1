package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/sugarscan/sugartrack/internal/hooks"
	"github.com/sugarscan/sugartrack/internal/httpserver/protocol"
	"github.com/sugarscan/sugartrack/internal/ledger"
	"github.com/sugarscan/sugartrack/internal/metrics"
)

const msgDataNotFound = "Data not found!"

type consumptionEndpoint struct {
	server *Server
}

func newConsumptionEndpoint(server *Server) protocol.Endpoint {
	return &consumptionEndpoint{server: server}
}

func (e *consumptionEndpoint) Name() string { return "consumption" }

func (e *consumptionEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/consume", Handler: http.HandlerFunc(e.server.handleConsume)},
		{Method: http.MethodGet, Path: "/consume", Handler: http.HandlerFunc(e.server.handleDailyStatus)},
	}
}

type consumeRequest struct {
	ConsumeSugar number `json:"consumeSugar"`
	Date         string `json:"date"`
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req consumeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.metrics.RecordLedgerOp("consume", metrics.OutcomeInvalid)
		s.respondError(w, r, err)
		return
	}
	if !req.ConsumeSugar.Set {
		s.metrics.RecordLedgerOp("consume", metrics.OutcomeInvalid)
		s.respondFail(w, http.StatusBadRequest, "consumeSugar is required")
		return
	}

	eventDate := s.today()
	if req.Date != "" {
		d, err := ledger.ParseDate(req.Date)
		if err != nil {
			s.metrics.RecordLedgerOp("consume", metrics.OutcomeInvalid)
			s.respondFail(w, http.StatusBadRequest, err.Error())
			return
		}
		eventDate = d
	}

	amount := req.ConsumeSugar.Value
	outcome, err := s.ledger.RecordConsumption(r.Context(), id.UserID, amount, eventDate)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) || errors.Is(err, ledger.ErrTotalOverflow) {
			s.metrics.RecordLedgerOp("consume", metrics.OutcomeInvalid)
		} else {
			s.metrics.RecordLedgerOp("consume", metrics.OutcomeError)
		}
		s.respondError(w, r, err)
		return
	}

	message := "update successful"
	opOutcome := metrics.OutcomeUpdated
	if outcome.Action == ledger.ActionCreated {
		message = "insert successful"
		opOutcome = metrics.OutcomeCreated
	}
	s.metrics.RecordLedgerOp("consume", opOutcome)
	s.metrics.RecordConsumption(amount)

	s.emit(r.Context(), hooks.EventConsumptionRecorded, id.UserID, map[string]any{
		"action": string(outcome.Action),
		"amount": amount,
		"total":  outcome.Record.ConsumedSugar,
		"date":   outcome.Record.RecordDate.String(),
	})
	s.checkLimitCrossed(r.Context(), r, id.UserID, amount, outcome.Record)

	s.respondSuccess(w, message, outcome.Record)
}

// checkLimitCrossed emits EventLimitExceeded when this consumption moved the
// running total from within the user's limit to above it. It reads the
// profile directly so a back-dated write never triggers a reset.
func (s *Server) checkLimitCrossed(ctx context.Context, r *http.Request, userID int64, amount float64, rec ledger.Record) {
	if s.hooks == nil {
		return
	}
	profile, err := s.users.FindUserProfile(ctx, userID)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Int64("user_id", userID).Msg("limit check skipped")
		return
	}
	if profile == nil {
		return
	}
	before := rec.ConsumedSugar - amount
	if rec.ConsumedSugar > profile.SugarLimit && before <= profile.SugarLimit {
		s.emit(ctx, hooks.EventLimitExceeded, userID, map[string]any{
			"total":       rec.ConsumedSugar,
			"sugar_limit": profile.SugarLimit,
			"date":        rec.RecordDate.String(),
		})
	}
}

func (s *Server) handleDailyStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	status, err := s.ledger.GetDailyStatus(r.Context(), id.UserID, s.today())
	if errors.Is(err, ledger.ErrNotFound) {
		s.metrics.RecordLedgerOp("status", metrics.OutcomeNotFound)
		s.respondFail(w, http.StatusBadRequest, msgDataNotFound)
		return
	}
	if err != nil {
		s.metrics.RecordLedgerOp("status", metrics.OutcomeError)
		s.respondError(w, r, err)
		return
	}
	s.metrics.RecordLedgerOp("status", metrics.OutcomeRead)

	if status.Reset {
		s.metrics.RecordReset()
		s.emit(r.Context(), hooks.EventLedgerReset, id.UserID, map[string]any{
			"date": status.RecordDate.String(),
		})
	}
	s.respondSuccess(w, "read successful", status)
}
