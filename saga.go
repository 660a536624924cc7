/*
Copyright 2025 Tandem Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tandem

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/model"
)

// SagaStep is one unit of a saga definition. Execute must be safe to repeat:
// the orchestrator persists the step index before invoking it, so a crash
// mid-step re-runs the same step on resume. Compensate undoes a completed
// Execute when a later step fails.
type SagaStep interface {
	ID() string
	Execute(ctx context.Context, instance *model.SagaInstance) (*model.StepResult, error)
	Compensate(ctx context.Context, instance *model.SagaInstance) error
}

// SagaDefinition is a named, ordered list of steps.
type SagaDefinition struct {
	Type  string
	Steps []SagaStep
}

// SagaRegistry holds the registered saga definitions by type.
type SagaRegistry struct {
	mu          sync.RWMutex
	definitions map[string]*SagaDefinition
}

func NewSagaRegistry() *SagaRegistry {
	return &SagaRegistry{definitions: make(map[string]*SagaDefinition)}
}

func (r *SagaRegistry) Register(definition *SagaDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[definition.Type] = definition
}

func (r *SagaRegistry) Get(sagaType string) (*SagaDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	definition, ok := r.definitions[sagaType]
	return definition, ok
}

// RegisterSaga adds a saga definition to the registry, replacing any prior
// definition of the same type.
func (t *Tandem) RegisterSaga(definition *SagaDefinition) {
	t.registry.Register(definition)
}

// StartSaga persists a new saga instance in PENDING and enqueues it for
// asynchronous execution. The caller receives the instance immediately and
// does not block on completion.
func (t *Tandem) StartSaga(ctx context.Context, sagaType, tenantID, actorID string, payload map[string]interface{}, correlationID string) (*model.SagaInstance, error) {
	ctx, span := tracer.Start(ctx, "StartSaga")
	defer span.End()

	if _, ok := t.registry.Get(sagaType); !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No saga definition registered for type '%s'", sagaType), nil)
	}

	instance := &model.SagaInstance{
		SagaType:      sagaType,
		CorrelationID: correlationID,
		TenantID:      tenantID,
		ActorID:       actorID,
		Data:          payload,
	}
	instance.SagaID = model.GenerateUUIDWithSuffix("sga")

	created, err := t.datasource.CreateSagaInstance(ctx, instance, &model.DomainEvent{
		AggregateID: instance.SagaID,
		EventType:   model.EventSagaStarted,
		Payload:     map[string]interface{}{"saga_type": sagaType, "correlation_id": correlationID},
	})
	if err != nil {
		return nil, err
	}

	if t.queue != nil {
		if err := t.queue.EnqueueSaga(ctx, created); err != nil {
			return nil, err
		}
	}

	SendWebhook(NewWebhook{Event: model.EventSagaStarted, Payload: created})
	return created, nil
}

// GetSagaStatus retrieves a saga instance by its ID.
func (t *Tandem) GetSagaStatus(ctx context.Context, sagaID string) (*model.SagaInstance, error) {
	return t.datasource.GetSagaInstance(ctx, sagaID)
}

// ExecuteSaga drives a saga instance through its remaining steps. It is the
// queue worker's entry point and is safe to call repeatedly: a terminal
// instance is a no-op, and a RUNNING instance resumes from its persisted
// currentStep rather than from the start.
func (t *Tandem) ExecuteSaga(ctx context.Context, sagaID string) error {
	ctx, span := tracer.Start(ctx, "ExecuteSaga")
	defer span.End()

	instance, err := t.datasource.GetSagaInstance(ctx, sagaID)
	if err != nil {
		return err
	}
	if instance.IsTerminal() {
		return nil
	}

	definition, ok := t.registry.Get(instance.SagaType)
	if !ok {
		return t.failSaga(ctx, instance, fmt.Sprintf("no saga definition registered for type '%s'", instance.SagaType))
	}

	switch instance.Status {
	case model.SagaStatusPending:
		moved, err := t.datasource.TransitionSagaStatus(ctx, sagaID, model.SagaStatusPending, model.SagaStatusRunning, nil)
		if err != nil {
			return t.failSaga(ctx, instance, err.Error())
		}
		if !moved {
			// Another worker already picked this saga up.
			return nil
		}
		instance.Status = model.SagaStatusRunning
	case model.SagaStatusCompensating:
		// A crash interrupted compensation; restart it from the last step
		// recorded before the failure.
		return t.compensate(ctx, definition, instance, instance.CurrentStep, instance.LastError)
	}

	return t.runSteps(ctx, definition, instance)
}

func (t *Tandem) runSteps(ctx context.Context, definition *SagaDefinition, instance *model.SagaInstance) error {
	if instance.StepResults == nil {
		instance.StepResults = make(map[string]interface{})
	}

	for i := instance.CurrentStep; i < len(definition.Steps); i++ {
		step := definition.Steps[i]

		// Persist the index before invoking the step so a crash mid-step
		// resumes at this step, not the next one.
		if err := t.datasource.SetSagaCurrentStep(ctx, instance.SagaID, i); err != nil {
			return t.failSaga(ctx, instance, err.Error())
		}
		instance.CurrentStep = i

		result := t.executeStep(ctx, step, instance)
		if !result.Success {
			logrus.WithFields(logrus.Fields{
				"saga_id": instance.SagaID,
				"step":    step.ID(),
			}).Warnf("saga step failed: %s", result.Error)

			moved, err := t.datasource.TransitionSagaStatus(ctx, instance.SagaID,
				model.SagaStatusRunning, model.SagaStatusCompensating, &model.DomainEvent{
					AggregateID: instance.SagaID,
					EventType:   model.EventSagaStepFailed,
					Payload:     map[string]interface{}{"step": step.ID(), "error": result.Error},
				})
			if err != nil || !moved {
				return t.failSaga(ctx, instance, result.Error)
			}
			return t.compensate(ctx, definition, instance, i, result.Error)
		}

		instance.StepResults[step.ID()] = result.Data
		err := t.datasource.RecordSagaStepResult(ctx, instance.SagaID, instance.StepResults, &model.DomainEvent{
			AggregateID: instance.SagaID,
			EventType:   model.EventSagaStepCompleted,
			Payload:     map[string]interface{}{"step": step.ID(), "data": result.Data},
		})
		if err != nil {
			return t.failSaga(ctx, instance, err.Error())
		}
	}

	moved, err := t.datasource.FinalizeSaga(ctx, instance.SagaID,
		model.SagaStatusRunning, model.SagaStatusCompleted, "", &model.DomainEvent{
			AggregateID: instance.SagaID,
			EventType:   model.EventSagaCompleted,
			Payload:     map[string]interface{}{"step_results": instance.StepResults},
		})
	if err != nil {
		return t.failSaga(ctx, instance, err.Error())
	}
	if moved {
		instance.Status = model.SagaStatusCompleted
		SendWebhook(NewWebhook{Event: model.EventSagaCompleted, Payload: instance})
	}
	return nil
}

// compensate undoes every step before failedIndex in strict reverse order,
// best-effort: a compensation failure is logged and the loop continues, so one
// broken cleanup never blocks cleanup of earlier steps.
func (t *Tandem) compensate(ctx context.Context, definition *SagaDefinition, instance *model.SagaInstance, failedIndex int, cause string) error {
	for i := failedIndex - 1; i >= 0; i-- {
		step := definition.Steps[i]
		if err := step.Compensate(ctx, instance); err != nil {
			logrus.WithFields(logrus.Fields{
				"saga_id": instance.SagaID,
				"step":    step.ID(),
			}).Errorf("saga compensation failed: %v", err)
		}
	}

	moved, err := t.datasource.FinalizeSaga(ctx, instance.SagaID,
		model.SagaStatusCompensating, model.SagaStatusCompensated, cause, &model.DomainEvent{
			AggregateID: instance.SagaID,
			EventType:   model.EventSagaCompensated,
			Payload:     map[string]interface{}{"error": cause},
		})
	if err != nil {
		return t.failSaga(ctx, instance, err.Error())
	}
	if moved {
		instance.Status = model.SagaStatusCompensated
		instance.LastError = cause
		SendWebhook(NewWebhook{Event: model.EventSagaCompensated, Payload: instance})
	}
	return nil
}

// failSaga marks a saga FAILED after an error outside the per-step contract,
// typically a persistence failure while recording progress. Compensation is
// not attempted because the true state is unknown; the instance is surfaced
// for operator intervention instead.
func (t *Tandem) failSaga(ctx context.Context, instance *model.SagaInstance, cause string) error {
	logrus.WithField("saga_id", instance.SagaID).Errorf("saga failed: %s", cause)

	moved, err := t.datasource.FinalizeSaga(ctx, instance.SagaID,
		instance.Status, model.SagaStatusFailed, cause, &model.DomainEvent{
			AggregateID: instance.SagaID,
			EventType:   model.EventSagaFailed,
			Payload:     map[string]interface{}{"error": cause},
		})
	if err != nil {
		logrus.WithField("saga_id", instance.SagaID).Errorf("failed to finalize saga: %v", err)
	}
	if err == nil && !moved {
		// The stored row advanced past the status this worker read, so the
		// stored state wins and no failure notification goes out for it.
		logrus.WithField("saga_id", instance.SagaID).Warnf("saga no longer in %s, FAILED transition not applied", instance.Status)
	} else {
		instance.Status = model.SagaStatusFailed
		SendWebhook(NewWebhook{Event: model.EventSagaFailed, Payload: instance})
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Saga '%s' failed: %s", instance.SagaID, cause), nil)
}

// ResumeInFlightSagas re-enqueues sagas left PENDING, RUNNING or COMPENSATING
// by a crashed process. Each resumes from its persisted currentStep; steps are
// idempotent so re-running the interrupted step is safe.
func (t *Tandem) ResumeInFlightSagas(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "ResumeInFlightSagas")
	defer span.End()

	resumed := 0
	for _, status := range []string{model.SagaStatusPending, model.SagaStatusRunning, model.SagaStatusCompensating} {
		instances, err := t.datasource.GetSagasByStatus(ctx, status, 1000)
		if err != nil {
			return resumed, err
		}
		for _, instance := range instances {
			if t.queue == nil {
				continue
			}
			if err := t.queue.EnqueueSaga(ctx, instance); err != nil {
				logrus.WithField("saga_id", instance.SagaID).Errorf("failed to re-enqueue saga: %v", err)
				continue
			}
			resumed++
		}
	}
	if resumed > 0 {
		logrus.Infof("recovery: re-enqueued %d in-flight sagas", resumed)
	}
	return resumed, nil
}
