package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"
	"github.com/boddenberg/mesada-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Mesada — /v1/children/{childId}/allowance
// ============================================================

func putAllowanceHandler(svc *service.AllowanceService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/children/{childId}/allowance")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		span.SetAttributes(attribute.String("child.id", childID))
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		var req domain.AllowanceConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		cfg, err := svc.Configure(ctx, childID, &req, time.Now())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func getAllowanceHandler(svc *service.AllowanceService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/children/{childId}/allowance")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		cfg, err := svc.Get(ctx, childID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// ============================================================
// Rendimento — /v1/children/{childId}/interest
// ============================================================

func putInterestHandler(svc *service.InterestService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/children/{childId}/interest")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		span.SetAttributes(attribute.String("child.id", childID))
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		var req domain.InterestConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		cfg, err := svc.Configure(ctx, childID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func getInterestHandler(svc *service.InterestService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/children/{childId}/interest")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		cfg, err := svc.Get(ctx, childID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}
