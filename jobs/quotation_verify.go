package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// QuotationLister is the read side the quotation jobs need.
type QuotationLister interface {
	List(ctx context.Context, req quotations.ListQuotationsRequest) ([]quotations.Quotation, error)
}

// Divergence kinds reported by the quotation jobs.
const (
	DivergenceNoneActive     = "none_active"
	DivergenceMultipleActive = "multiple_active"
	DivergenceOrphanActive   = "orphan_active"
	DivergenceOrphanPresent  = "orphan_present"
)

// VerifyStateJob inspects a base after a rollback failure and reports what an
// operator has to fix. It never retries compensation itself.
type VerifyStateJob struct {
	Quotations QuotationLister
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewVerifyStateJob wires dependencies for the verify handler.
func NewVerifyStateJob(quotes QuotationLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *VerifyStateJob {
	return &VerifyStateJob{Quotations: quotes, Logger: logger, Metrics: metrics}
}

// Handle processes TaskQuotationVerifyState tasks.
func (j *VerifyStateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Quotations == nil {
		return errors.New("verify state: handler not configured")
	}
	var payload VerifyStatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.BaseNumber == "" || payload.PriorID == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskQuotationVerifyState)
	kinds, err := j.Verify(ctx, payload)
	if err != nil {
		return tracker.End(err)
	}
	for _, kind := range kinds {
		j.metrics().AddDivergences(kind, 1)
	}
	return tracker.End(nil)
}

// Verify lists the versions of the payload's base and returns the divergence
// kinds found. An empty result means the base is clean.
func (j *VerifyStateJob) Verify(ctx context.Context, payload VerifyStatePayload) ([]string, error) {
	base := payload.BaseNumber
	list, err := j.Quotations.List(ctx, quotations.ListQuotationsRequest{BaseNumber: &base})
	if err != nil {
		return nil, err
	}
	logger := j.logger().With(
		slog.String("base_number", base),
		slog.String("prior_id", payload.PriorID),
		slog.String("created_id", payload.CreatedID),
	)

	var kinds []string
	active := make([]quotations.Quotation, 0, 1)
	for _, q := range list {
		if q.IsActive {
			active = append(active, q)
		}
		if payload.CreatedID != "" && q.ID == payload.CreatedID {
			kinds = append(kinds, DivergenceOrphanPresent)
		}
	}
	switch {
	case len(active) == 0:
		kinds = append(kinds, DivergenceNoneActive)
	case len(active) > 1:
		kinds = append(kinds, DivergenceMultipleActive)
	case active[0].ID != payload.PriorID:
		kinds = append(kinds, DivergenceOrphanActive)
	}

	if len(kinds) == 0 {
		logger.Info("quotation state verified clean")
		return nil, nil
	}
	ids := make([]string, 0, len(active))
	for _, q := range active {
		ids = append(ids, q.ID)
	}
	logger.Error("quotation state diverged, manual repair required",
		slog.Any("kinds", kinds),
		slog.Any("active_ids", ids),
		slog.Int("versions", len(list)),
	)
	return kinds, nil
}

func (j *VerifyStateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *VerifyStateJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
