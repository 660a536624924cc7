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
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"

	"github.com/tandemhq/tandem/config"
	redis_db "github.com/tandemhq/tandem/internal/redis-db"
	"github.com/tandemhq/tandem/model"
)

var tracer = otel.Tracer("tandem.saga")

// Queue represents a queue for handling various tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// SagaTaskPayload is the payload carried by a queued saga execution task.
type SagaTaskPayload struct {
	SagaID string `json:"saga_id"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueSaga enqueues a saga instance for asynchronous execution. Sagas are
// distributed across the saga queues by hashing the saga ID, so redelivery of
// the same saga always lands on the same queue and executes serially with its
// earlier attempts.
func (q *Queue) EnqueueSaga(ctx context.Context, instance *model.SagaInstance) error {
	ctx, span := tracer.Start(ctx, "Adding Saga To Redis Queue")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(SagaTaskPayload{SagaID: instance.SagaID})
	if err != nil {
		return err
	}

	queueIndex := hashShardKey(instance.SagaID) % cfg.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cfg.Queue.SagaQueue, queueIndex+1)

	taskOptions := []asynq.Option{
		asynq.TaskID(instance.SagaID),
		asynq.Queue(queueName),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	}
	info, err := q.Client.EnqueueContext(ctx, asynq.NewTask(queueName, payload, taskOptions...))
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued saga: %s", instance.SagaID)

	return nil
}

// hashShardKey hashes a key to distribute work evenly across the numbered
// queues. All tasks sharing a key are processed serially within one queue.
func hashShardKey(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % 100000)
}
