package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// parseHistoryFilter reads the ledger history query parameters:
// ?from=YYYY-MM-DD&to=YYYY-MM-DD&kind=a,b&category=x&limit=n
func parseHistoryFilter(r *http.Request) domain.HistoryFilter {
	q := r.URL.Query()
	var f domain.HistoryFilter

	if v := q.Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			// inclusive end of day
			end := t.Add(24*time.Hour - time.Nanosecond)
			f.To = &end
		}
	}
	if v := q.Get("kind"); v != "" {
		for _, k := range strings.Split(v, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				f.Kinds = append(f.Kinds, domain.TransactionKind(k))
			}
		}
	}
	f.Category = q.Get("category")
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	return f
}

// authorizeChildAccess checks that the authenticated user may act on the
// child's account and writes the error response when they may not.
func authorizeChildAccess(ctx context.Context, w http.ResponseWriter, authorizer port.Authorizer, childID string, logger *zap.Logger) bool {
	userID := UserIDFromContext(ctx)
	allowed, err := authorizer.CanActOn(ctx, userID, childID)
	if err != nil {
		handleServiceError(w, err, logger)
		return false
	}
	if !allowed {
		logger.Warn("child access denied",
			zap.String("user_id", userID),
			zap.String("child_id", childID),
		)
		writeError(w, http.StatusForbidden, "Acesso negado à conta da criança")
		return false
	}
	return true
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var validation *domain.ErrValidation
	var invalidAmount *domain.ErrInvalidAmount
	var insufficientBalance *domain.ErrInsufficientBalance
	var goalNotEligible *domain.ErrGoalNotEligible
	var alreadyDecided *domain.ErrAlreadyDecided
	var misconfigured *domain.ErrSchedulingMisconfigured
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidAmount):
		logger.Debug("invalid amount", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &misconfigured):
		logger.Warn("scheduling misconfigured", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficientBalance):
		logger.Warn("insufficient balance",
			zap.Float64("available", insufficientBalance.Available),
			zap.Float64("required", insufficientBalance.Required),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &goalNotEligible):
		logger.Debug("goal not eligible", zap.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &alreadyDecided):
		logger.Debug("request already decided", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "serviço externo indisponível")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
