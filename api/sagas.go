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
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/tandemhq/tandem/api/model"
	"github.com/tandemhq/tandem/internal/apierror"
)

// StartSaga creates a saga instance and enqueues it for execution. The
// response carries the PENDING instance; execution happens on the workers.
func (a Api) StartSaga(c *gin.Context) {
	var req model2.StartSaga
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateStartSaga(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	instance, err := a.tandem.StartSaga(c.Request.Context(), req.SagaType, req.TenantID, req.ActorID, req.Payload, req.CorrelationID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, instance)
}

// GetSagaStatus returns a saga instance with its step results.
func (a Api) GetSagaStatus(c *gin.Context) {
	sagaID, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	instance, err := a.tandem.GetSagaStatus(c.Request.Context(), sagaID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, instance)
}

// GetEventHistory streams the ordered event log for an aggregate, optionally
// starting from a version given by the from_version query parameter.
func (a Api) GetEventHistory(c *gin.Context) {
	aggregateID, passed := c.Params.Get("aggregate_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "aggregate_id is required. pass it in the route /:aggregate_id"})
		return
	}

	var fromVersion int64
	if raw := c.Query("from_version"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from_version must be an integer"})
			return
		}
		fromVersion = parsed
	}

	events, err := a.tandem.GetEventHistory(c.Request.Context(), aggregateID, fromVersion)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"aggregate_id": aggregateID, "events": events})
}
