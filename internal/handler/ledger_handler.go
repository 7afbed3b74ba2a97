package handler

import (
	"encoding/json"
	"net/http"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"
	"github.com/boddenberg/mesada-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Saldo e extrato — /v1/children/{childId}/...
// ============================================================

func getBalanceHandler(svc *service.LedgerService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/children/{childId}/balance")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		balance, err := svc.Balance(ctx, childID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.BalanceResponse{ChildID: childID, Balance: balance})
	}
}

func listTransactionsHandler(svc *service.LedgerService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/children/{childId}/transactions")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		transactions, err := svc.History(ctx, childID, parseHistoryFilter(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
	}
}

// ============================================================
// Gastos — POST /v1/children/{childId}/spend
// ============================================================

func spendHandler(svc *service.LedgerService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/children/{childId}/spend")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		span.SetAttributes(attribute.String("child.id", childID))
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		var req domain.SpendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := svc.Spend(ctx, childID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		status := http.StatusCreated
		if resp.Status == "pending_approval" {
			status = http.StatusAccepted
		}
		writeJSON(w, status, resp)
	}
}

// ============================================================
// Bônus — POST /v1/children/{childId}/bonus
// ============================================================

func bonusHandler(svc *service.LedgerService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/children/{childId}/bonus")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		var req domain.BonusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tx, err := svc.Bonus(ctx, childID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

// ============================================================
// Empréstimos — /v1/children/{childId}/loans
// ============================================================

func repayLoanHandler(svc *service.LedgerService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/children/{childId}/loans/repay")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		var req domain.LoanRepayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tx, err := svc.RepayLoan(ctx, childID, req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func outstandingLoanHandler(svc *service.LedgerService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/children/{childId}/loans/outstanding")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		outstanding, err := svc.OutstandingLoan(ctx, childID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"child_id":    childID,
			"outstanding": outstanding,
		})
	}
}
