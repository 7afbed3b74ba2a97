package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/handler"
	"github.com/boddenberg/mesada-api-go/internal/infra/cache"
	"github.com/boddenberg/mesada-api-go/internal/infra/memory"
	"github.com/boddenberg/mesada-api-go/internal/infra/observability"
	"github.com/boddenberg/mesada-api-go/internal/infra/resilience"
	"github.com/boddenberg/mesada-api-go/internal/infra/supabase"
	"github.com/boddenberg/mesada-api-go/internal/scheduler"
	"github.com/boddenberg/mesada-api-go/internal/service"

	"go.uber.org/zap"
)

// fakePostgrest is a minimal in-memory PostgREST double covering the
// children table and the append_transaction function.
type fakePostgrest struct {
	mu       sync.Mutex
	children map[string]map[string]any
	appended []map[string]any
}

func newFakePostgrest() *fakePostgrest {
	return &fakePostgrest{children: make(map[string]map[string]any)}
}

func (f *fakePostgrest) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/rest/v1/rpc/append_transaction":
			var args map[string]any
			if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			childID, _ := args["p_child_id"].(string)
			child, ok := f.children[childID]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"message":"child not found"}`))
				return
			}
			child["balance"] = args["p_balance_after"]
			f.appended = append(f.appended, args)
			w.Write([]byte(`{}`))

		case r.URL.Path == "/rest/v1/children" && r.Method == http.MethodPost:
			var row map[string]any
			if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			id, _ := row["id"].(string)
			f.children[id] = row
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode([]map[string]any{row})

		case r.URL.Path == "/rest/v1/children" && r.Method == http.MethodGet:
			out := []map[string]any{}
			idFilter := r.URL.Query().Get("id")
			familyFilter := r.URL.Query().Get("family_id")
			for _, row := range f.children {
				if idFilter != "" && "eq."+row["id"].(string) != idFilter {
					continue
				}
				if familyFilter != "" && "eq."+row["family_id"].(string) != familyFilter {
					continue
				}
				out = append(out, row)
			}
			json.NewEncoder(w).Encode(out)

		case r.URL.Path == "/rest/v1/transactions" && r.Method == http.MethodGet:
			childFilter := strings.TrimPrefix(r.URL.Query().Get("child_id"), "eq.")
			out := []map[string]any{}
			// Newest first by insertion.
			for i := len(f.appended) - 1; i >= 0; i-- {
				tx := f.appended[i]
				if childID, _ := tx["p_child_id"].(string); childID != childFilter {
					continue
				}
				out = append(out, map[string]any{
					"id":            tx["p_id"],
					"child_id":      tx["p_child_id"],
					"amount":        tx["p_amount"],
					"kind":          tx["p_kind"],
					"category":      tx["p_category"],
					"description":   tx["p_description"],
					"balance_after": tx["p_balance_after"],
					"date":          tx["p_date"],
				})
			}
			json.NewEncoder(w).Encode(out)

		default:
			w.Write([]byte(`[]`))
		}
	})
}

// buildRouter wires the full HTTP stack against the given backend URL,
// with the in-memory auth store handling credentials.
func buildRouter(backendURL, breakerName string) http.Handler {
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	cb := resilience.NewCircuitBreaker(breakerName)
	httpClient := &http.Client{Timeout: 5 * time.Second}

	store := supabase.NewClient(httpClient, backendURL, "anon-key", "service-key", cb, cfg, logger)
	authStore := memory.NewAuthStore()
	clock := systemClock{}

	authSvc := service.NewAuthService(authStore, "integration-secret", 15*time.Minute, 24*time.Hour, logger)
	authorizer := service.NewFamilyAuthorizer(authStore, store)
	ledgerSvc := service.NewLedgerService(store, cache.New[float64](time.Minute), metrics, logger, clock, 20)
	allowanceSvc := service.NewAllowanceService(store, ledgerSvc, metrics, logger)
	interestSvc := service.NewInterestService(store, ledgerSvc, metrics, logger)
	goalSvc := service.NewGoalService(store, ledgerSvc, clock, logger)
	approvalSvc := service.NewApprovalService(store, ledgerSvc, authorizer, metrics, logger, clock)
	childSvc := service.NewChildService(store, authSvc, clock, logger)
	runner := scheduler.NewRunner(store, allowanceSvc, interestSvc, clock, logger, time.Hour, 2)

	return handler.NewRouter(&handler.Services{
		Auth:       authSvc,
		Children:   childSvc,
		Ledger:     ledgerSvc,
		Goals:      goalSvc,
		Approvals:  approvalSvc,
		Allowance:  allowanceSvc,
		Interest:   interestSvc,
		Authorizer: authorizer,
		Runner:     runner,
		Store:      store,
	}, metrics, logger)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// TestIntegration_LedgerFlow drives register → child → bonus → spend →
// balance through the router with the PostgREST double as the backend.
func TestIntegration_LedgerFlow(t *testing.T) {
	backend := httptest.NewServer(newFakePostgrest().handler())
	defer backend.Close()

	router := buildRouter(backend.URL, "integration-ledger")

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"familyName": "Silva",
		"parentName": "Maria",
		"email":      "maria@example.com",
		"password":   "senha-forte-123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "maria@example.com",
		"password": "senha-forte-123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&login); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/children", login.AccessToken, map[string]string{"name": "Pedro"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create child: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var child struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&child); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/children/"+child.ID+"/bonus", login.AccessToken, map[string]any{"amount": 50})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bonus: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/children/"+child.ID+"/spend", login.AccessToken, map[string]any{
		"amount":   12.50,
		"category": "lanche",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("spend: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/children/"+child.ID+"/balance", login.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var balance struct {
		Balance float64 `json:"balance"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&balance); err != nil {
		t.Fatal(err)
	}
	if balance.Balance != 37.50 {
		t.Errorf("expected balance 37.50, got %v", balance.Balance)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/children/"+child.ID+"/transactions", login.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions: expected 200, got %d", rec.Code)
	}
}

// TestIntegration_BackendDown verifies a failing backend surfaces as 502
// instead of hanging or crashing the stack.
func TestIntegration_BackendDown(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"database unavailable"}`))
	}))
	defer backend.Close()

	router := buildRouter(backend.URL, "integration-down")

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"familyName": "Silva",
		"parentName": "Maria",
		"email":      "maria@example.com",
		"password":   "senha-forte-123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register should not touch the data backend, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "maria@example.com",
		"password": "senha-forte-123",
	})
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&login); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/children", login.AccessToken, nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 from failing backend, got %d: %s", rec.Code, rec.Body.String())
	}
}
