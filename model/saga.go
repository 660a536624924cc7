package model

import (
	"encoding/json"
	"time"
)

const (
	SagaStatusPending      = "PENDING"
	SagaStatusRunning      = "RUNNING"
	SagaStatusCompensating = "COMPENSATING"
	SagaStatusCompensated  = "COMPENSATED"
	SagaStatusCompleted    = "COMPLETED"
	SagaStatusFailed       = "FAILED"
)

// SagaInstance is the persisted state of one long-running business transaction.
// CurrentStep only moves forward while RUNNING; StepResults only grows; once the
// instance reaches COMPLETED, COMPENSATED or FAILED it never changes again.
type SagaInstance struct {
	ID            int64                  `json:"-"`
	SagaID        string                 `json:"saga_id"`
	SagaType      string                 `json:"saga_type"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Status        string                 `json:"status"`
	CurrentStep   int                    `json:"current_step"`
	Data          map[string]interface{} `json:"data"`
	StepResults   map[string]interface{} `json:"step_results"`
	TenantID      string                 `json:"tenant_id"`
	ActorID       string                 `json:"actor_id"`
	LastError     string                 `json:"last_error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the saga has reached a final state.
func (s *SagaInstance) IsTerminal() bool {
	switch s.Status {
	case SagaStatusCompleted, SagaStatusCompensated, SagaStatusFailed:
		return true
	}
	return false
}

func (s *SagaInstance) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// StepResult is the outcome of one saga step execution. Data is recorded into
// the instance's StepResults on success; Error carries the failure that pushed
// the saga into compensation.
type StepResult struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
