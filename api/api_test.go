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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tandemhq/tandem"
	model2 "github.com/tandemhq/tandem/api/model"
	"github.com/tandemhq/tandem/config"
	"github.com/tandemhq/tandem/database/mocks"
	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	err := json.NewDecoder(resp.Body).Decode(&s.Response)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *mocks.MockDataSource) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
	})

	mockDS := new(mocks.MockDataSource)
	engine, err := tandem.NewTandem(mockDS)
	require.NoError(t, err)

	return NewAPI(engine).Router(), mockDS
}

func toJSON(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestCreateInventoryItemAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	sku := gofakeit.Word() + "-" + gofakeit.UUID()
	mockDS.On("CreateInventoryItem", mock.Anything, mock.Anything).Return(&model.InventoryItem{
		InventoryID:    "inv_" + gofakeit.UUID(),
		SKU:            sku,
		QuantityOnHand: 25,
		TrackQuantity:  true,
	}, nil)

	var response model.InventoryItem
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  toJSON(t, model2.CreateInventoryItem{SKU: sku, QuantityOnHand: 25}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/inventory",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, sku, response.SKU)
}

func TestCreateInventoryItemAPIRejectsMissingSKU(t *testing.T) {
	router, mockDS := setupRouter(t)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  toJSON(t, model2.CreateInventoryItem{QuantityOnHand: 10}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/inventory",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	mockDS.AssertNotCalled(t, "CreateInventoryItem", mock.Anything, mock.Anything)
}

func TestCreateReservationAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	orderID := gofakeit.UUID()
	key := model.ReservationKey(model.ReferenceTypeOrder, orderID)

	mockDS.On("GetReservationByKey", mock.Anything, key).
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "no reservation", nil))
	mockDS.On("CreateReservation", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.InventoryReservation{
			ReservationID:  "rsv_" + gofakeit.UUID(),
			ReservationKey: key,
			Status:         model.ReservationStatusActive,
			Quantity:       2,
		}, nil)

	var response model.InventoryReservation
	resp, err := SetUpTestRequest(TestRequest{
		Payload: toJSON(t, model2.CreateReservation{
			InventoryID:   "inv_123",
			Quantity:      2,
			ReferenceType: model.ReferenceTypeOrder,
			ReferenceID:   orderID,
		}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/reservations",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, model.ReservationStatusActive, response.Status)
}

func TestCreateReservationAPIRejectsZeroQuantity(t *testing.T) {
	router, mockDS := setupRouter(t)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload: toJSON(t, model2.CreateReservation{
			InventoryID:   "inv_123",
			Quantity:      0,
			ReferenceType: model.ReferenceTypeOrder,
			ReferenceID:   gofakeit.UUID(),
		}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/reservations",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	mockDS.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommitReservationAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	key := model.ReservationKey(model.ReferenceTypeOrder, "order_77")
	mockDS.On("GetReservationByKey", mock.Anything, key).Return(&model.InventoryReservation{
		ReservationID:  "rsv_77",
		ReservationKey: key,
		Status:         model.ReservationStatusActive,
	}, nil)
	mockDS.On("TransitionReservation", mock.Anything, "rsv_77", model.ReservationStatusActive, model.ReservationStatusCommitted, mock.Anything).
		Return(true, nil)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  toJSON(t, model2.ReservationAction{Actor: "checkout-service"}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/reservations/" + key + "/commit",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "committed", response["status"])
}

func TestCreateLedgerEntriesAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	mockDS.On("GetLastRunningBalance", mock.Anything, mock.Anything, mock.Anything).
		Return(decimal.Zero, nil)
	mockDS.On("RecordLedgerEntries", mock.Anything, mock.Anything).
		Return([]*model.LedgerEntry{
			{EntryID: "ent_1", SubjectID: "order_9", Amount: decimal.NewFromInt(-100)},
			{EntryID: "ent_2", SubjectID: "order_9", Amount: decimal.NewFromInt(100)},
		}, nil)

	var response []*model.LedgerEntry
	resp, err := SetUpTestRequest(TestRequest{
		Payload: toJSON(t, model2.CreateLedgerEntries{Entries: []model2.LedgerEntryRequest{
			{
				SubjectID:   "order_9",
				EntryType:   model.EntryTypePaymentCaptured,
				AccountType: model.AccountTypeCustomer,
				AccountID:   "cust_1",
				Amount:      decimal.NewFromInt(-100),
				Currency:    "USD",
				Description: "payment captured",
			},
			{
				SubjectID:   "order_9",
				EntryType:   model.EntryTypePaymentCaptured,
				AccountType: model.AccountTypeMerchant,
				AccountID:   "merch_1",
				Amount:      decimal.NewFromInt(100),
				Currency:    "USD",
				Description: "payment captured",
			},
		}}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/ledger/entries",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Len(t, response, 2)
}

func TestCreateLedgerEntriesAPIRejectsZeroAmount(t *testing.T) {
	router, mockDS := setupRouter(t)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload: toJSON(t, model2.CreateLedgerEntries{Entries: []model2.LedgerEntryRequest{
			{
				SubjectID:   "order_9",
				EntryType:   model.EntryTypePaymentCaptured,
				AccountType: model.AccountTypeCustomer,
				Amount:      decimal.Zero,
				Currency:    "USD",
				Description: "payment captured",
			},
		}}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/ledger/entries",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	mockDS.AssertNotCalled(t, "RecordLedgerEntries", mock.Anything, mock.Anything)
}

func TestGetSagaStatusAPI(t *testing.T) {
	router, mockDS := setupRouter(t)

	mockDS.On("GetSagaInstance", mock.Anything, "sga_42").Return(&model.SagaInstance{
		SagaID:   "sga_42",
		SagaType: "order_fulfillment",
		Status:   model.SagaStatusCompleted,
	}, nil)

	var response model.SagaInstance
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(nil),
		Router:   router,
		Response: &response,
		Method:   http.MethodGet,
		Route:    "/sagas/sga_42",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.SagaStatusCompleted, response.Status)
}

func TestStartSagaAPIRejectsMissingType(t *testing.T) {
	router, mockDS := setupRouter(t)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  toJSON(t, model2.StartSaga{Payload: map[string]interface{}{"order_id": "order_1"}}),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/sagas",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	mockDS.AssertNotCalled(t, "CreateSagaInstance", mock.Anything, mock.Anything, mock.Anything)
}
