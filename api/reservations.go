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

	"github.com/gin-gonic/gin"

	model2 "github.com/tandemhq/tandem/api/model"
	"github.com/tandemhq/tandem/internal/apierror"
)

// CreateInventoryItem registers a stock record.
func (a Api) CreateInventoryItem(c *gin.Context) {
	var newItem model2.CreateInventoryItem
	if err := c.ShouldBindJSON(&newItem); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := newItem.ValidateCreateInventoryItem(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.tandem.CreateInventoryItem(c.Request.Context(), newItem.ToInventoryItem())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetInventoryItem returns a stock record by ID.
func (a Api) GetInventoryItem(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.tandem.GetInventoryItem(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// AdjustInventory applies a signed on-hand delta to a stock record.
func (a Api) AdjustInventory(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var adjustment model2.AdjustInventory
	if err := c.ShouldBindJSON(&adjustment); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := adjustment.ValidateAdjustInventory(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := a.tandem.AdjustInventoryQuantity(c.Request.Context(), id, adjustment.Delta); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	item, err := a.tandem.GetInventoryItem(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, item)
}

// CreateReservation places a hold on inventory. Repeating the call for the
// same reference returns the existing hold with status 200 rather than 201.
func (a Api) CreateReservation(c *gin.Context) {
	var newReservation model2.CreateReservation
	if err := c.ShouldBindJSON(&newReservation); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := newReservation.ValidateCreateReservation(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.tandem.Reserve(c.Request.Context(), newReservation.InventoryID, newReservation.Quantity,
		newReservation.ReferenceType, newReservation.ReferenceID, newReservation.TTL())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetReservation returns a reservation by ID.
func (a Api) GetReservation(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.tandem.GetReservation(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CommitReservation turns an active hold into a permanent deduction.
func (a Api) CommitReservation(c *gin.Context) {
	key, passed := c.Params.Get("key")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required. pass key in the route /:key"})
		return
	}

	var action model2.ReservationAction
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := action.ValidateReservationAction(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := a.tandem.CommitReservation(c.Request.Context(), key, action.Actor, action.Reason); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "committed"})
}

// ReleaseReservation returns a hold's quantity to availability.
func (a Api) ReleaseReservation(c *gin.Context) {
	key, passed := c.Params.Get("key")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required. pass key in the route /:key"})
		return
	}

	var action model2.ReservationAction
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := action.ValidateReservationAction(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := a.tandem.ReleaseReservation(c.Request.Context(), key, action.Actor, action.Reason); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "released"})
}

// SweepExpiredReservations runs the expiry sweep on demand.
func (a Api) SweepExpiredReservations(c *gin.Context) {
	swept, err := a.tandem.SweepExpiredReservations(c.Request.Context())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"swept": swept})
}
