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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tandemhq/tandem/config"
	"github.com/tandemhq/tandem/database"
	"github.com/tandemhq/tandem/internal/gateway"
	redis_db "github.com/tandemhq/tandem/internal/redis-db"
)

// Tandem represents the main struct for the Tandem coordinator. It carries the
// datasource, the queue used for asynchronous saga execution and webhooks, the
// redis client backing ledger account locks, the registered saga definitions,
// and the payment gateway client used by refund steps.
type Tandem struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	registry   *SagaRegistry
	gateway    gateway.Client
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewTandem initializes a new instance of Tandem with the provided datasource.
// It fetches the configuration, initializes the Redis client, queue, payment
// gateway client, and registers the built-in saga definitions.
func NewTandem(db database.IDataSource) (*Tandem, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	newTandem := &Tandem{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		registry:   NewSagaRegistry(),
		gateway:    gateway.NewHTTPClient(configuration),
	}
	newTandem.registerBuiltinSagas()
	return newTandem, nil
}
