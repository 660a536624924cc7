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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/tandemhq/tandem/config"
	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/model"
)

// stepRetryInterval is the base delay between step retries; each retry doubles
// it. Shortened in tests.
var stepRetryInterval = time.Minute

// executeStep invokes a step under the step-local retry policy. Retryable
// errors (gateway, network, timeout) are retried with exponential backoff up
// to the configured maximum; anything else fails the step immediately and the
// orchestrator compensates. A step returning a failed StepResult is never
// retried, it already decided the outcome.
func (t *Tandem) executeStep(ctx context.Context, step SagaStep, instance *model.SagaInstance) *model.StepResult {
	maxRetries := 3
	if cfg, err := config.Fetch(); err == nil && cfg.Saga.MaxStepRetries > 0 {
		maxRetries = cfg.Saga.MaxStepRetries
	}

	var result *model.StepResult
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = stepRetryInterval
	policy.Multiplier = 2
	policy.MaxInterval = stepRetryInterval * 8

	attempt := 0
	operation := func() error {
		attempt++
		stepResult, err := step.Execute(ctx, instance)
		if err != nil {
			if apierror.Retryable(err) {
				logrus.WithFields(logrus.Fields{
					"saga_id": instance.SagaID,
					"step":    step.ID(),
					"attempt": attempt,
				}).Warnf("retryable step error: %v", err)
				return err
			}
			return backoff.Permanent(err)
		}
		result = stepResult
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries)), ctx))
	if err != nil {
		return &model.StepResult{Success: false, Error: err.Error()}
	}
	if result == nil {
		return &model.StepResult{Success: false, Error: "step returned no result"}
	}
	return result
}

// FuncStep builds a saga step from plain functions. Used by the built-in
// workflows and by callers registering custom definitions.
type FuncStep struct {
	StepID         string
	ExecuteFunc    func(ctx context.Context, instance *model.SagaInstance) (*model.StepResult, error)
	CompensateFunc func(ctx context.Context, instance *model.SagaInstance) error
}

func (s *FuncStep) ID() string { return s.StepID }

func (s *FuncStep) Execute(ctx context.Context, instance *model.SagaInstance) (*model.StepResult, error) {
	return s.ExecuteFunc(ctx, instance)
}

func (s *FuncStep) Compensate(ctx context.Context, instance *model.SagaInstance) error {
	if s.CompensateFunc == nil {
		return nil
	}
	return s.CompensateFunc(ctx, instance)
}
