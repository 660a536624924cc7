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
	"github.com/tandemhq/tandem/model"
)

// CreateLedgerEntries appends a batch of ledger entries. The batch is
// all-or-nothing; any invalid entry rejects the whole request.
func (a Api) CreateLedgerEntries(c *gin.Context) {
	var batch model2.CreateLedgerEntries
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := batch.ValidateCreateLedgerEntries(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.tandem.RecordEntries(c.Request.Context(), batch.ToInputs())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// SummarizeSubject returns totals and per-account breakdown for a subject.
func (a Api) SummarizeSubject(c *gin.Context) {
	subjectID, passed := c.Params.Get("subject_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject_id is required. pass it in the route /:subject_id"})
		return
	}

	resp, err := a.tandem.SummarizeSubject(c.Request.Context(), subjectID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ValidateSubjectBalance reconciles a subject from its stored entries.
func (a Api) ValidateSubjectBalance(c *gin.Context) {
	subjectID, passed := c.Params.Get("subject_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject_id is required. pass it in the route /:subject_id"})
		return
	}

	resp, err := a.tandem.ValidateSubjectBalance(c.Request.Context(), subjectID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// AccountBalance sums an account scope. account_id and currency come from
// query parameters; currency defaults to USD.
func (a Api) AccountBalance(c *gin.Context) {
	accountType, passed := c.Params.Get("account_type")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_type is required. pass it in the route /:account_type"})
		return
	}

	currency := c.DefaultQuery("currency", "USD")
	scope := model.AccountScope{
		AccountType: accountType,
		AccountID:   c.Query("account_id"),
	}

	resp, err := a.tandem.AccountBalance(c.Request.Context(), scope, currency)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
