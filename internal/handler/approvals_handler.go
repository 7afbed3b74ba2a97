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
// Aprovações — /v1/approvals
// ============================================================

func submitLoanHandler(svc *service.ApprovalService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/approvals")
		defer span.End()

		var req domain.LoanRequestBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ChildID == "" {
			writeError(w, http.StatusBadRequest, "childId is required")
			return
		}
		if !authorizeChildAccess(ctx, w, authorizer, req.ChildID, logger) {
			return
		}

		request, err := svc.SubmitLoan(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, request)
	}
}

func listFamilyApprovalsHandler(svc *service.ApprovalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/approvals")
		defer span.End()

		status := domain.ApprovalStatus(r.URL.Query().Get("status"))
		requests, err := svc.ListForFamily(ctx, FamilyIDFromContext(ctx), status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
	}
}

func listFamilyApprovalsByIDHandler(svc *service.ApprovalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/families/{familyId}/approvals")
		defer span.End()

		familyID := chi.URLParam(r, "familyId")
		// A family's requests are only visible from inside that family.
		if familyID != FamilyIDFromContext(ctx) {
			writeError(w, http.StatusForbidden, "Acesso negado às solicitações desta família")
			return
		}

		status := domain.ApprovalStatus(r.URL.Query().Get("status"))
		requests, err := svc.ListForFamily(ctx, familyID, status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
	}
}

func listChildApprovalsHandler(svc *service.ApprovalService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/children/{childId}/approvals")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		status := domain.ApprovalStatus(r.URL.Query().Get("status"))
		requests, err := svc.ListForChild(ctx, childID, status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
	}
}

func getApprovalHandler(svc *service.ApprovalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/approvals/{requestId}")
		defer span.End()

		requestID := chi.URLParam(r, "requestId")
		request, err := svc.Get(ctx, requestID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		// Requests are family-scoped; outside the family they do not exist.
		if request.FamilyID != FamilyIDFromContext(ctx) {
			writeError(w, http.StatusNotFound, (&domain.ErrNotFound{Resource: "approval_request", ID: requestID}).Error())
			return
		}
		writeJSON(w, http.StatusOK, request)
	}
}

func decideApprovalHandler(svc *service.ApprovalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/approvals/{requestId}/decide")
		defer span.End()

		requestID := chi.URLParam(r, "requestId")
		span.SetAttributes(attribute.String("request.id", requestID))

		var req domain.DecideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		decided, err := svc.Decide(ctx, requestID, UserIDFromContext(ctx), req.Approve)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, decided)
	}
}
