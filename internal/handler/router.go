package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/infra/observability"
	"github.com/boddenberg/mesada-api-go/internal/port"
	"github.com/boddenberg/mesada-api-go/internal/scheduler"
	"github.com/boddenberg/mesada-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles everything the router serves.
type Services struct {
	Auth       *service.AuthService
	Children   *service.ChildService
	Ledger     *service.LedgerService
	Goals      *service.GoalService
	Approvals  *service.ApprovalService
	Allowance  *service.AllowanceService
	Interest   *service.InterestService
	Authorizer port.Authorizer
	Runner     *scheduler.Runner
	Store      port.Store
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs *Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(requestMetricsMiddleware(metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Autenticação
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authRegisterHandler(svcs.Auth, logger))
			r.Post("/login", authLoginHandler(svcs.Auth, logger))
			r.Post("/refresh", authRefreshHandler(svcs.Auth, logger))

			r.Group(func(r chi.Router) {
				r.Use(JWTAuthMiddleware(svcs.Auth, logger))
				r.Post("/logout", authLogoutHandler(svcs.Auth, logger))
			})
		})

		// Everything else requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Auth, logger))

			// =============================================
			// Crianças
			// =============================================
			r.Get("/children", listChildrenHandler(svcs.Children, logger))
			r.Get("/children/{childId}", getChildHandler(svcs.Children, svcs.Authorizer, logger))
			r.Get("/children/{childId}/balance", getBalanceHandler(svcs.Ledger, svcs.Authorizer, logger))
			r.Get("/children/{childId}/transactions", listTransactionsHandler(svcs.Ledger, svcs.Authorizer, logger))

			// =============================================
			// Movimentações
			// =============================================
			r.Post("/children/{childId}/spend", spendHandler(svcs.Ledger, svcs.Authorizer, logger))
			r.Post("/children/{childId}/loans/repay", repayLoanHandler(svcs.Ledger, svcs.Authorizer, logger))
			r.Get("/children/{childId}/loans/outstanding", outstandingLoanHandler(svcs.Ledger, svcs.Authorizer, logger))

			// =============================================
			// Metas
			// =============================================
			r.Post("/children/{childId}/goals", createGoalHandler(svcs.Goals, svcs.Authorizer, logger))
			r.Get("/children/{childId}/goals", listGoalsHandler(svcs.Goals, svcs.Authorizer, logger))
			r.Get("/goals/{goalId}", getGoalHandler(svcs.Goals, svcs.Authorizer, logger))
			r.Post("/goals/{goalId}/contribute", contributeGoalHandler(svcs.Goals, svcs.Authorizer, logger))
			r.Post("/goals/{goalId}/withdraw", withdrawGoalHandler(svcs.Goals, svcs.Authorizer, logger))
			r.Post("/goals/{goalId}/fulfillment", requestFulfillmentHandler(svcs.Goals, svcs.Authorizer, logger))

			// =============================================
			// Aprovações
			// =============================================
			r.Post("/approvals", submitLoanHandler(svcs.Approvals, svcs.Authorizer, logger))
			r.Get("/approvals", listFamilyApprovalsHandler(svcs.Approvals, logger))
			r.Get("/approvals/{requestId}", getApprovalHandler(svcs.Approvals, logger))
			r.Get("/families/{familyId}/approvals", listFamilyApprovalsByIDHandler(svcs.Approvals, logger))
			r.Get("/children/{childId}/approvals", listChildApprovalsHandler(svcs.Approvals, svcs.Authorizer, logger))

			// =============================================
			// Configurações (leitura)
			// =============================================
			r.Get("/children/{childId}/allowance", getAllowanceHandler(svcs.Allowance, svcs.Authorizer, logger))
			r.Get("/children/{childId}/interest", getInterestHandler(svcs.Interest, svcs.Authorizer, logger))

			// =============================================
			// Métricas do livro-razão
			// =============================================
			r.Get("/metrics/ledger", ledgerMetricsHandler(metrics, logger))

			// =============================================
			// Rotas exclusivas de responsáveis
			// =============================================
			r.Group(func(r chi.Router) {
				r.Use(RequireParent(logger))
				r.Post("/children", createChildHandler(svcs.Children, logger))
				r.Post("/children/{childId}/bonus", bonusHandler(svcs.Ledger, svcs.Authorizer, logger))
				r.Post("/approvals/{requestId}/decide", decideApprovalHandler(svcs.Approvals, logger))
				r.Put("/children/{childId}/allowance", putAllowanceHandler(svcs.Allowance, svcs.Authorizer, logger))
				r.Put("/children/{childId}/interest", putInterestHandler(svcs.Interest, svcs.Authorizer, logger))
				r.Post("/admin/tick", tickHandler(svcs.Runner, logger))
			})
		})
	})

	return r
}

// requestMetricsMiddleware counts requests by status class and records
// their duration per route pattern.
func requestMetricsMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := "ok"
			if ww.Status() >= 500 {
				status = "error"
			} else if ww.Status() >= 400 {
				status = "client_error"
			}
			metrics.IncrRequest(status)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = r.URL.Path
			}
			metrics.RecordRequestDuration(r.Method+" "+pattern, time.Since(start))
		})
	}
}

// ============================================================
// Health & metrics
// ============================================================

func healthzHandler(store port.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "mesada-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		start := time.Now()
		_, err := store.GetChild(ctx, "health-check")
		latency := time.Since(start).Milliseconds()
		status := "healthy"
		if err != nil {
			status = "degraded"
		}
		services = append(services, domain.ServiceHealth{
			Name: "store", Status: status, LatencyMs: latency, LastChecked: now,
		})

		overall := "healthy"
		for _, s := range services {
			if s.Status == "degraded" {
				overall = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overall,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func ledgerMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetLedgerSnapshot())
	}
}
