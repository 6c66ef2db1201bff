package versioning

import "sync"

// Step is a stage of the save saga.
type Step string

const (
	StepValidating          Step = "validating"
	StepCreatingVersion     Step = "creating_version"
	StepReassigningPackages Step = "reassigning_packages"
	StepActivating          Step = "activating"
	StepFinalizing          Step = "finalizing"
)

// Steps lists the saga stages in execution order.
var Steps = []Step{
	StepValidating,
	StepCreatingVersion,
	StepReassigningPackages,
	StepActivating,
	StepFinalizing,
}

// State is the terminal state of a saga run.
type State string

const (
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	StateFailed     State = "failed"
)

// StepStatus is the progress of one step.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusActive    StepStatus = "active"
	StatusDone      StepStatus = "done"
	StatusError     StepStatus = "error"
	StatusCancelled StepStatus = "cancelled"
)

// SagaContext holds the version id pair of one save. The saga and a concurrent canceller both
// read it, so every access goes through the mutex and takes effect immediately.
type SagaContext struct {
	mu        sync.Mutex
	priorID   string
	createdID string
	current   Step
	statuses  map[Step]StepStatus
}

// NewSagaContext starts a context for a save of the version priorID.
func NewSagaContext(priorID string) *SagaContext {
	statuses := make(map[Step]StepStatus, len(Steps))
	for _, s := range Steps {
		statuses[s] = StatusPending
	}
	return &SagaContext{priorID: priorID, statuses: statuses}
}

func (c *SagaContext) PriorID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.priorID
}

func (c *SagaContext) CreatedID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createdID
}

// IDs returns the created and prior ids as one consistent pair.
func (c *SagaContext) IDs() (createdID, priorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createdID, c.priorID
}

func (c *SagaContext) SetCreated(id string) {
	c.mu.Lock()
	c.createdID = id
	c.mu.Unlock()
}

// Enter marks step as the active one.
func (c *SagaContext) Enter(step Step) {
	c.mu.Lock()
	c.current = step
	c.statuses[step] = StatusActive
	c.mu.Unlock()
}

// Finish sets the status of the current step.
func (c *SagaContext) Finish(status StepStatus) {
	c.mu.Lock()
	if c.current != "" {
		c.statuses[c.current] = status
	}
	c.mu.Unlock()
}

func (c *SagaContext) Current() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Statuses returns a copy of the per-step progress.
func (c *SagaContext) Statuses() map[Step]StepStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Step]StepStatus, len(c.statuses))
	for k, v := range c.statuses {
		out[k] = v
	}
	return out
}
