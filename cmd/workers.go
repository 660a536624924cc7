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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/tandemhq/tandem"
	"github.com/tandemhq/tandem/config"
	redis_db "github.com/tandemhq/tandem/internal/redis-db"
)

// executeSaga drives a saga instance pulled from one of the sharded saga
// queues. Errors are returned so asynq retries the task; the orchestrator
// itself resumes from the persisted step on re-entry.
func (t *tandemInstance) executeSaga(ctx context.Context, task *asynq.Task) error {
	ctx, span := otel.Tracer("tandem.saga.worker").Start(ctx, "Execute Saga From Queue")
	defer span.End()

	var payload tandem.SagaTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	if err := t.tandem.ExecuteSaga(ctx, payload.SagaID); err != nil {
		logrus.Infof("Saga %s pushed back for retry due to error: %v", payload.SagaID, err)
		return err
	}

	log.Println(" [*] Saga Processed", payload.SagaID)
	return nil
}

// sweepReservations moves overdue active reservations to EXPIRED and returns
// their quantities to availability.
func (t *tandemInstance) sweepReservations(ctx context.Context, _ *asynq.Task) error {
	swept, err := t.tandem.SweepExpiredReservations(ctx)
	if err != nil {
		return err
	}
	if swept > 0 {
		logrus.Infof(" [*] Swept %d expired reservations", swept)
	}
	return nil
}

// dispatchOutbox pushes undelivered domain events to the configured webhook.
func (t *tandemInstance) dispatchOutbox(ctx context.Context, _ *asynq.Task) error {
	dispatched, err := t.tandem.DispatchPendingEvents(ctx)
	if err != nil {
		return err
	}
	if dispatched > 0 {
		logrus.Infof(" [*] Dispatched %d domain events", dispatched)
	}
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.WebhookQueue] = 3
	queues[cfg.Queue.OutboxQueue] = 1
	queues[cfg.Queue.SweepQueue] = 1

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.SagaQueue, i)
		queues[queueName] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(t *tandemInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.SagaQueue, i)
		mux.HandleFunc(queueName, t.executeSaga)
	}

	mux.HandleFunc(cfg.Queue.WebhookQueue, tandem.ProcessWebhook)
	mux.HandleFunc(cfg.Queue.OutboxQueue, t.dispatchOutbox)
	mux.HandleFunc(cfg.Queue.SweepQueue, t.sweepReservations)
}

// initializeScheduler registers the periodic reservation sweep and outbox
// dispatch tasks.
func initializeScheduler(conf *config.Configuration) (*asynq.Scheduler, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		nil,
	)

	sweepTask := asynq.NewTask(conf.Queue.SweepQueue, nil)
	if _, err := scheduler.Register(conf.Reservation.SweepCronSpec, sweepTask, asynq.Queue(conf.Queue.SweepQueue)); err != nil {
		return nil, fmt.Errorf("error registering sweep task: %v", err)
	}

	outboxTask := asynq.NewTask(conf.Queue.OutboxQueue, nil)
	if _, err := scheduler.Register("@every 10s", outboxTask, asynq.Queue(conf.Queue.OutboxQueue)); err != nil {
		return nil, fmt.Errorf("error registering outbox task: %v", err)
	}

	return scheduler, nil
}

// workerCommands defines the "workers" command. Workers execute sagas from
// the sharded queues, deliver webhooks, dispatch the event outbox and sweep
// expired reservations on a schedule.
func workerCommands(t *tandemInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start tandem workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(t, mux)

			scheduler, err := initializeScheduler(conf)
			if err != nil {
				log.Fatal(err)
			}
			go func() {
				if err := scheduler.Run(); err != nil {
					log.Fatalf("could not run scheduler: %v", err)
				}
			}()

			// Requeue sagas interrupted by a previous crash.
			resumed, err := t.tandem.ResumeInFlightSagas(ctx)
			if err != nil {
				log.Printf("Error resuming in-flight sagas: %v", err)
			} else if resumed > 0 {
				log.Printf("Requeued %d in-flight sagas", resumed)
			}

			// Start asynqmon for queue health checks and monitoring.
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
