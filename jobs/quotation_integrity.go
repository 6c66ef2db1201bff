package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
)

// IntegrityReport summarises one sweep.
type IntegrityReport struct {
	Bases          int
	NoneActive     []string
	MultipleActive []string
}

// Clean reports whether every base has exactly one active version.
func (r IntegrityReport) Clean() bool {
	return len(r.NoneActive) == 0 && len(r.MultipleActive) == 0
}

// IntegrityScanJob checks that every quotation base has exactly one active version.
type IntegrityScanJob struct {
	Quotations QuotationLister
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewIntegrityScanJob wires dependencies for the scan handler.
func NewIntegrityScanJob(quotes QuotationLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{Quotations: quotes, Logger: logger, Metrics: metrics}
}

// Handle processes TaskQuotationIntegrityScan tasks.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Quotations == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.metrics().Track(TaskQuotationIntegrityScan)
	report, err := j.Scan(ctx, payload.Prefix)
	if err != nil {
		return tracker.End(err)
	}
	j.metrics().AddDivergences(DivergenceNoneActive, len(report.NoneActive))
	j.metrics().AddDivergences(DivergenceMultipleActive, len(report.MultipleActive))
	return tracker.End(nil)
}

// Scan groups every version by base number and reports bases that break the
// single-active-version rule.
func (j *IntegrityScanJob) Scan(ctx context.Context, prefix string) (IntegrityReport, error) {
	list, err := j.Quotations.List(ctx, quotations.ListQuotationsRequest{})
	if err != nil {
		return IntegrityReport{}, err
	}
	active := make(map[string]int)
	for _, q := range list {
		if prefix != "" && !strings.HasPrefix(q.BaseNumber, prefix) {
			continue
		}
		if _, ok := active[q.BaseNumber]; !ok {
			active[q.BaseNumber] = 0
		}
		if q.IsActive {
			active[q.BaseNumber]++
		}
	}
	report := IntegrityReport{Bases: len(active)}
	for base, n := range active {
		switch {
		case n == 0:
			report.NoneActive = append(report.NoneActive, base)
		case n > 1:
			report.MultipleActive = append(report.MultipleActive, base)
		}
	}
	sort.Strings(report.NoneActive)
	sort.Strings(report.MultipleActive)

	logger := j.logger().With(slog.Int("bases", report.Bases))
	if report.Clean() {
		logger.Info("quotation integrity scan clean")
	} else {
		logger.Warn("quotation integrity scan found divergence",
			slog.Any("none_active", report.NoneActive),
			slog.Any("multiple_active", report.MultipleActive),
		)
	}
	return report, nil
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *IntegrityScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
