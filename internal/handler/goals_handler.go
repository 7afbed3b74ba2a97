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
// Metas — /v1/children/{childId}/goals, /v1/goals/{goalId}
// ============================================================

func createGoalHandler(svc *service.GoalService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/children/{childId}/goals")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		span.SetAttributes(attribute.String("child.id", childID))
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		var req domain.CreateGoalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		goal, err := svc.Create(ctx, childID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, goal)
	}
}

func listGoalsHandler(svc *service.GoalService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/children/{childId}/goals")
		defer span.End()

		childID := chi.URLParam(r, "childId")
		if !authorizeChildAccess(ctx, w, authorizer, childID, logger) {
			return
		}

		goals, err := svc.List(ctx, childID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
	}
}

// loadAuthorizedGoal fetches the goal and checks the caller may act on its
// owner. Writes the error response and returns nil when not allowed.
func loadAuthorizedGoal(svc *service.GoalService, authorizer port.Authorizer, w http.ResponseWriter, r *http.Request, logger *zap.Logger) *domain.Goal {
	ctx := r.Context()
	goalID := chi.URLParam(r, "goalId")

	goal, err := svc.Get(ctx, goalID)
	if err != nil {
		handleServiceError(w, err, logger)
		return nil
	}
	if !authorizeChildAccess(ctx, w, authorizer, goal.ChildID, logger) {
		return nil
	}
	return goal
}

func getGoalHandler(svc *service.GoalService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/goals/{goalId}")
		defer span.End()

		goal := loadAuthorizedGoal(svc, authorizer, w, r, logger)
		if goal == nil {
			return
		}
		writeJSON(w, http.StatusOK, goal)
	}
}

func contributeGoalHandler(svc *service.GoalService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/goals/{goalId}/contribute")
		defer span.End()

		goal := loadAuthorizedGoal(svc, authorizer, w, r, logger)
		if goal == nil {
			return
		}

		var req domain.ContributeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := svc.Contribute(ctx, goal.ID, req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func withdrawGoalHandler(svc *service.GoalService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/goals/{goalId}/withdraw")
		defer span.End()

		goal := loadAuthorizedGoal(svc, authorizer, w, r, logger)
		if goal == nil {
			return
		}

		var req domain.WithdrawRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		updated, err := svc.Withdraw(ctx, goal.ID, req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func requestFulfillmentHandler(svc *service.GoalService, authorizer port.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/goals/{goalId}/fulfillment")
		defer span.End()

		goal := loadAuthorizedGoal(svc, authorizer, w, r, logger)
		if goal == nil {
			return
		}

		request, err := svc.RequestFulfillment(ctx, goal.ID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, request)
	}
}
