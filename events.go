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

	"github.com/sirupsen/logrus"

	"github.com/tandemhq/tandem/model"
)

const outboxBatchSize = 100

// GetEventHistory returns an aggregate's events from the given version, in
// version order. Replaying them reconstructs the aggregate's audit trail.
func (t *Tandem) GetEventHistory(ctx context.Context, aggregateID string, fromVersion int64) ([]*model.DomainEvent, error) {
	return t.datasource.ReadEventsFrom(ctx, aggregateID, fromVersion)
}

// DispatchPendingEvents pushes undispatched events out as webhook
// notifications and marks them dispatched. Events are written in the same
// transaction as the state change they describe, so a delivery crash at worst
// re-sends an event, never loses one.
func (t *Tandem) DispatchPendingEvents(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "DispatchPendingEvents")
	defer span.End()

	events, err := t.datasource.GetUndispatchedEvents(ctx, outboxBatchSize)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, event := range events {
		if err := SendWebhook(NewWebhook{Event: event.EventType, Payload: event}); err != nil {
			logrus.WithField("event_id", event.EventID).Errorf("failed to dispatch event: %v", err)
			continue
		}
		if err := t.datasource.MarkEventDispatched(ctx, event.EventID); err != nil {
			logrus.WithField("event_id", event.EventID).Errorf("failed to mark event dispatched: %v", err)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}
