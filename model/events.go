package model

import (
	"encoding/json"
	"time"
)

const (
	EventSagaStarted         = "saga.started"
	EventSagaCompleted       = "saga.completed"
	EventSagaCompensated     = "saga.compensated"
	EventSagaFailed          = "saga.failed"
	EventSagaStepCompleted   = "saga.step.completed"
	EventSagaStepFailed      = "saga.step.failed"
	EventReservationCreated  = "reservation.created"
	EventReservationCommit   = "reservation.committed"
	EventReservationReleased = "reservation.released"
	EventReservationExpired  = "reservation.expired"
)

// DomainEvent is one append-only audit record for an aggregate. Versions are
// assigned per aggregate and strictly increase, so replaying events from
// version 0 reconstructs the aggregate's history.
type DomainEvent struct {
	ID          int64                  `json:"-"`
	EventID     string                 `json:"event_id"`
	AggregateID string                 `json:"aggregate_id"`
	Version     int64                  `json:"version"`
	EventType   string                 `json:"event_type"`
	Payload     map[string]interface{} `json:"payload"`
	Dispatched  bool                   `json:"dispatched"`
	CreatedAt   time.Time              `json:"created_at"`
}

func (e *DomainEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
