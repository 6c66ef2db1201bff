package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries follow-ups for saves whose compensation failed.
	QueueCritical = "critical"
	// TaskQuotationVerifyState re-checks a quotation base after a failed rollback.
	TaskQuotationVerifyState = "quotation:verify_state"
	// TaskQuotationIntegrityScan sweeps every base for active-version drift.
	TaskQuotationIntegrityScan = "quotation:integrity_scan"
)

// VerifyStatePayload identifies the save whose compensation could not be confirmed.
type VerifyStatePayload struct {
	BaseNumber string `json:"base_number"`
	CreatedID  string `json:"created_id,omitempty"`
	PriorID    string `json:"prior_id"`
}

// NewVerifyStateTask constructs an Asynq task.
func NewVerifyStateTask(payload VerifyStatePayload) (*asynq.Task, error) {
	if payload.BaseNumber == "" || payload.PriorID == "" {
		return nil, errors.New("verify state: base number and prior id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationVerifyState, data), nil
}

// IntegrityScanPayload narrows the sweep to a base number prefix.
type IntegrityScanPayload struct {
	Prefix string `json:"prefix,omitempty"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(prefix string) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityScanPayload{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationIntegrityScan, data), nil
}
