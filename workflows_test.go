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
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tandemhq/tandem/database/mocks"
	"github.com/tandemhq/tandem/model"
)

func refundInstance() *model.SagaInstance {
	return &model.SagaInstance{
		SagaID:   "sga_1",
		SagaType: SagaTypeRefund,
		Data: map[string]interface{}{
			"refund_id":         "rfnd_1",
			"order_id":          "ord_1",
			"payment_reference": "pay_123",
			"amount":            100.0,
			"currency":          "USD",
			"customer_id":       "cus_1",
			"merchant_id":       "mer_1",
			"fee":               2.5,
		},
		StepResults: map[string]interface{}{},
	}
}

func TestBuiltinSagasAreRegistered(t *testing.T) {
	tandem := newTestTandem(new(mocks.MockDataSource))
	tandem.registerBuiltinSagas()

	fulfillment, ok := tandem.registry.Get(SagaTypeOrderFulfillment)
	require.True(t, ok)
	assert.Equal(t, []string{"reserve_inventory", "capture_payment", "commit_inventory"}, stepIDs(fulfillment))

	refund, ok := tandem.registry.Get(SagaTypeRefund)
	require.True(t, ok)
	assert.Equal(t, []string{"record_refund_initiated", "gateway_refund", "record_refund_processed", "release_reservation"}, stepIDs(refund))
}

func stepIDs(definition *SagaDefinition) []string {
	ids := make([]string, 0, len(definition.Steps))
	for _, step := range definition.Steps {
		ids = append(ids, step.ID())
	}
	return ids
}

func TestRefundInitiatedEntriesBalance(t *testing.T) {
	inputs, err := refundInitiatedEntries(refundInstance())
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	net := decimal.Zero
	for _, input := range inputs {
		require.NoError(t, input.Validate())
		net = net.Add(input.Amount)
	}
	assert.True(t, net.IsZero())
	assert.Equal(t, model.AccountTypeMerchant, inputs[0].AccountType)
	assert.Equal(t, model.AccountTypeEscrow, inputs[1].AccountType)
}

func TestRefundProcessedEntriesIncludeFeePair(t *testing.T) {
	inputs, err := refundProcessedEntries(refundInstance())
	require.NoError(t, err)
	require.Len(t, inputs, 4)

	net := decimal.Zero
	for _, input := range inputs {
		require.NoError(t, input.Validate())
		net = net.Add(input.Amount)
	}
	assert.True(t, net.IsZero())
	assert.Equal(t, model.EntryTypeFeeDeducted, inputs[2].EntryType)
	assert.Equal(t, model.AccountTypeGateway, inputs[3].AccountType)
}

func TestRefundProcessedEntriesWithoutFee(t *testing.T) {
	instance := refundInstance()
	delete(instance.Data, "fee")

	inputs, err := refundProcessedEntries(instance)
	require.NoError(t, err)
	assert.Len(t, inputs, 2)
}

func TestReversalOfNegatesAmounts(t *testing.T) {
	instance := &model.SagaInstance{
		SagaID: "sga_1",
		Data: map[string]interface{}{
			"order_id":    "ord_1",
			"amount":      50.0,
			"currency":    "USD",
			"customer_id": "cus_1",
			"merchant_id": "mer_1",
		},
	}
	inputs, err := capturePaymentEntries(instance)
	require.NoError(t, err)

	reversed := reversalOf(instance, "capture_payment", inputs)
	require.Len(t, reversed, len(inputs))
	for i, input := range inputs {
		assert.True(t, reversed[i].Amount.Equal(input.Amount.Neg()))
		assert.Equal(t, model.EntryTypeReversal, reversed[i].EntryType)
		assert.Equal(t, input.AccountType, reversed[i].AccountType)
		// Reversals write under their own ids, distinct from the originals.
		assert.NotEqual(t, input.EntryID, reversed[i].EntryID)
	}
}

func TestLedgerStepEntryIDsStableAcrossRetries(t *testing.T) {
	instance := refundInstance()

	first, err := refundInitiatedEntries(instance)
	require.NoError(t, err)
	second, err := refundInitiatedEntries(instance)
	require.NoError(t, err)

	// A re-executed step re-posts the batch under identical ids, so the
	// ledger's unique entry id drops the duplicates instead of double-posting.
	require.Len(t, second, len(first))
	for i := range first {
		assert.NotEmpty(t, first[i].EntryID)
		assert.Equal(t, first[i].EntryID, second[i].EntryID)
	}

	// A different saga posting the same shape gets different ids.
	other := refundInstance()
	other.SagaID = "sga_2"
	otherInputs, err := refundInitiatedEntries(other)
	require.NoError(t, err)
	assert.NotEqual(t, first[0].EntryID, otherInputs[0].EntryID)
}

func TestRefundSagaReleasesReservation(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	tandem := newTestTandem(mockDS)
	tandem.registerBuiltinSagas()

	refund, ok := tandem.registry.Get(SagaTypeRefund)
	require.True(t, ok)
	step := refund.Steps[3]
	require.Equal(t, "release_reservation", step.ID())

	key := model.ReservationKey(model.ReferenceTypeOrder, "ord_1")
	expiresAt := time.Now().Add(time.Hour)
	mockDS.On("GetReservationByKey", mock.Anything, key).Return(&model.InventoryReservation{
		ReservationID:  "rsv_1",
		ReservationKey: key,
		Status:         model.ReservationStatusActive,
		ExpiresAt:      &expiresAt,
	}, nil)
	mockDS.On("TransitionReservation", mock.Anything, "rsv_1", model.ReservationStatusActive, model.ReservationStatusReleased, mock.Anything).
		Return(true, nil)

	result, err := step.Execute(context.Background(), refundInstance())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, true, result.Data["released"])
	mockDS.AssertExpectations(t)
}

func TestRefundSagaRestocksCommittedHold(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	tandem := newTestTandem(mockDS)
	tandem.registerBuiltinSagas()

	refund, ok := tandem.registry.Get(SagaTypeRefund)
	require.True(t, ok)
	step := refund.Steps[3]

	instance := refundInstance()
	instance.Data["inventory_id"] = "inv1"
	instance.Data["quantity"] = 3.0

	key := model.ReservationKey(model.ReferenceTypeOrder, "ord_1")
	mockDS.On("GetReservationByKey", mock.Anything, key).Return(&model.InventoryReservation{
		ReservationID:  "rsv_1",
		ReservationKey: key,
		Status:         model.ReservationStatusCommitted,
	}, nil)
	mockDS.On("AdjustInventoryQuantity", mock.Anything, "inv1", int64(3)).Return(nil)

	result, err := step.Execute(context.Background(), instance)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, false, result.Data["released"])
	mockDS.AssertExpectations(t)
}

func TestDataHelpersRejectMissingKeys(t *testing.T) {
	instance := &model.SagaInstance{Data: map[string]interface{}{}}

	_, err := dataString(instance, "order_id")
	assert.Error(t, err)
	_, err = dataInt(instance, "quantity")
	assert.Error(t, err)
	_, err = dataDecimal(instance, "amount")
	assert.Error(t, err)
}

func TestDataDecimalAcceptsStringAmounts(t *testing.T) {
	instance := &model.SagaInstance{Data: map[string]interface{}{"amount": "19.99"}}
	amount, err := dataDecimal(instance, "amount")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromFloat(19.99)))
}
