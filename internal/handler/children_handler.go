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
// Crianças — /v1/children
// ============================================================

func createChildHandler(svc *service.ChildService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/children")
		defer span.End()

		var req domain.CreateChildRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		child, err := svc.Create(ctx, FamilyIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, child)
	}
}

func listChildrenHandler(svc *service.ChildService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/children")
		defer span.End()

		children, err := svc.List(ctx, FamilyIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"children": children})
	}
}

func getChildHandler(svc *service.ChildService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/children/{childId}")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		span.SetAttributes(attribute.String("child.id", childID))
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		child, err := svc.Get(ctx, childID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, child)
	}
}
