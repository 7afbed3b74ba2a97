package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/scheduler"

	"go.uber.org/zap"
)

// ============================================================
// Tick manual — POST /v1/admin/tick
// ============================================================

// tickHandler runs one scheduler pass on demand. The optional date lets a
// parent replay a missed day; ticks are idempotent so replays are safe.
func tickHandler(runner *scheduler.Runner, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/tick")
		defer span.End()

		var req domain.TickRequest
		if r.Body != nil {
			// An empty body means "today".
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		today := time.Now()
		if req.Date != "" {
			parsed, err := time.Parse("2006-01-02", req.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "data inválida, use YYYY-MM-DD")
				return
			}
			today = parsed
		}

		summary, err := runner.RunOnce(ctx, today)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("manual tick executed",
			zap.String("date", summary.Date),
			zap.Int("disbursements", summary.Disbursements),
			zap.Int("interest_postings", summary.InterestPostings),
		)
		writeJSON(w, http.StatusOK, summary)
	}
}
