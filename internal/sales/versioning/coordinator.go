package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/shared"
	core "github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Locker guards a key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Auditor records save outcomes.
type Auditor interface {
	Record(ctx context.Context, log core.AuditLog) error
}

// SaveObserver counts save outcomes.
type SaveObserver interface {
	ObserveQuotationSave(outcome string)
}

// FollowUp schedules a manual-verification check after a failed rollback.
type FollowUp interface {
	VerifyState(ctx context.Context, baseNumber, createdID, priorID string) error
}

// Hooks are the optional collaborators of a Coordinator. Nil members are skipped.
type Hooks struct {
	Locker   Locker
	LockTTL  time.Duration
	Auditor  Auditor
	Observer SaveObserver
	FollowUp FollowUp
}

// Outcome labels beyond the terminal saga states.
const (
	OutcomeInvalid = "invalid"
	OutcomeBusy    = "busy"
	OutcomeError   = "error"
)

// Coordinator runs at most one save per quotation at a time and routes cancellations to it.
type Coordinator struct {
	saga      *Saga
	workspace *Workspace
	hooks     Hooks
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]*CancelToken
}

func NewCoordinator(saga *Saga, workspace *Workspace, hooks Hooks, logger *slog.Logger) *Coordinator {
	if hooks.LockTTL <= 0 {
		hooks.LockTTL = 2 * time.Minute
	}
	return &Coordinator{
		saga:      saga,
		workspace: workspace,
		hooks:     hooks,
		logger:    logger,
		inFlight:  make(map[string]*CancelToken),
	}
}

// Save runs the saga for req. A concurrent save of the same base number fails with
// ErrSaveInProgress without touching the store.
func (c *Coordinator) Save(ctx context.Context, req Request) (*Outcome, error) {
	baseNumber := req.Base.BaseNumber
	token, ok := c.register(baseNumber)
	if !ok {
		c.observe(OutcomeBusy)
		return nil, ErrSaveInProgress
	}
	defer c.unregister(baseNumber)

	if c.hooks.Locker != nil {
		release, err := c.hooks.Locker.Acquire(ctx, core.QuotationLockKey(baseNumber), c.hooks.LockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLocked) {
				c.observe(OutcomeBusy)
				return nil, ErrSaveInProgress
			}
			c.observe(OutcomeError)
			return nil, fmt.Errorf("lock quotation: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				c.logger.Warn("release save lock failed",
					slog.String("base_number", baseNumber),
					slog.Any("error", err))
			}
		}()
	}

	if _, err := c.workspace.Refresh(ctx, c.saga.store); err != nil {
		c.observe(OutcomeError)
		return nil, err
	}

	outcome, err := c.saga.Run(ctx, req, token)
	c.finish(ctx, req, outcome, err)
	return outcome, err
}

// Cancel requests cancellation of the running save of baseNumber. It reports whether one was
// running.
func (c *Coordinator) Cancel(baseNumber string) bool {
	c.mu.Lock()
	token, ok := c.inFlight[baseNumber]
	c.mu.Unlock()
	if ok {
		token.Cancel()
		c.logger.Info("save cancellation requested", slog.String("base_number", baseNumber))
	}
	return ok
}

// InFlight reports whether a save of baseNumber is running in this process.
func (c *Coordinator) InFlight(baseNumber string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[baseNumber]
	return ok
}

// Workspace is the read model the coordinator refreshes.
func (c *Coordinator) Workspace() *Workspace {
	return c.workspace
}

func (c *Coordinator) register(baseNumber string) (*CancelToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[baseNumber]; busy {
		return nil, false
	}
	token := NewCancelToken()
	c.inFlight[baseNumber] = token
	return token, true
}

func (c *Coordinator) unregister(baseNumber string) {
	c.mu.Lock()
	delete(c.inFlight, baseNumber)
	c.mu.Unlock()
}

func (c *Coordinator) finish(ctx context.Context, req Request, outcome *Outcome, err error) {
	label := OutcomeError
	switch {
	case errors.Is(err, shared.ErrValidation):
		label = OutcomeInvalid
	case outcome != nil && outcome.State != "":
		label = string(outcome.State)
	}
	c.observe(label)

	if label == OutcomeInvalid {
		return
	}

	var rf *RollbackFailure
	if errors.As(err, &rf) && c.hooks.FollowUp != nil {
		if ferr := c.hooks.FollowUp.VerifyState(context.WithoutCancel(ctx), rf.BaseNumber, rf.CreatedID, rf.PriorID); ferr != nil {
			c.logger.Error("schedule state verification failed",
				slog.String("base_number", rf.BaseNumber),
				slog.Any("error", ferr))
		}
	}

	if c.hooks.Auditor == nil || outcome == nil {
		return
	}
	meta := map[string]any{
		"state":       outcome.State,
		"prior_id":    outcome.PriorID,
		"base_number": outcome.BaseNumber,
	}
	if outcome.VersionID != "" {
		meta["version_id"] = outcome.VersionID
		meta["version_number"] = outcome.VersionNumber
	}
	if err != nil {
		meta["error"] = err.Error()
	}
	entityID := outcome.VersionID
	if outcome.State != StateCommitted || entityID == "" {
		entityID = req.Base.ID
	}
	if aerr := c.hooks.Auditor.Record(context.WithoutCancel(ctx), core.AuditLog{
		Action:   "quotation.save." + string(outcome.State),
		Entity:   "quotation",
		EntityID: entityID,
		Meta:     meta,
	}); aerr != nil {
		c.logger.Warn("audit save outcome failed", slog.Any("error", aerr))
	}
}

func (c *Coordinator) observe(outcome string) {
	if c.hooks.Observer != nil {
		c.hooks.Observer.ObserveQuotationSave(outcome)
	}
}
