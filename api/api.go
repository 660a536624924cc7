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
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tandemhq/tandem"
	"github.com/tandemhq/tandem/api/middleware"
	"github.com/tandemhq/tandem/config"
)

type Api struct {
	tandem *tandem.Tandem
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/inventory", a.CreateInventoryItem)
	router.GET("/inventory/:id", a.GetInventoryItem)
	router.POST("/inventory/:id/adjust", a.AdjustInventory)

	router.POST("/reservations", a.CreateReservation)
	router.GET("/reservations/:id", a.GetReservation)
	router.POST("/reservations/:key/commit", a.CommitReservation)
	router.POST("/reservations/:key/release", a.ReleaseReservation)
	router.POST("/reservations/sweep", a.SweepExpiredReservations)

	router.POST("/ledger/entries", a.CreateLedgerEntries)
	router.GET("/ledger/subjects/:subject_id", a.SummarizeSubject)
	router.GET("/ledger/subjects/:subject_id/validate", a.ValidateSubjectBalance)
	router.GET("/ledger/accounts/:account_type/balance", a.AccountBalance)

	router.POST("/sagas", a.StartSaga)
	router.GET("/sagas/:id", a.GetSagaStatus)
	router.GET("/events/:aggregate_id", a.GetEventHistory)
	return a.router
}

func NewAPI(t *tandem.Tandem) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{tandem: t, router: r}
}
