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
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/model"
)

const (
	SagaTypeOrderFulfillment = "order_fulfillment"
	SagaTypeRefund           = "refund"
)

func (t *Tandem) registerBuiltinSagas() {
	t.RegisterSaga(t.OrderFulfillmentSaga())
	t.RegisterSaga(t.RefundSaga())
}

// OrderFulfillmentSaga reserves stock, captures payment into the ledger, then
// commits the hold. Payload keys: order_id, inventory_id, quantity, amount,
// currency, customer_id, merchant_id.
func (t *Tandem) OrderFulfillmentSaga() *SagaDefinition {
	return &SagaDefinition{
		Type: SagaTypeOrderFulfillment,
		Steps: []SagaStep{
			&FuncStep{
				StepID: "reserve_inventory",
				ExecuteFunc: func(ctx context.Context, instance *model.SagaInstance) (*model.StepResult, error) {
					inventoryID, err := dataString(instance, "inventory_id")
					if err != nil {
						return nil, err
					}
					orderID, err := dataString(instance, "order_id")
					if err != nil {
						return nil, err
					}
					quantity, err := dataInt(instance, "quantity")
					if err != nil {
						return nil, err
					}

					reservation, err := t.Reserve(ctx, inventoryID, quantity, model.ReferenceTypeOrder, orderID, nil)
					if err != nil {
						return nil, err
					}
					return &model.StepResult{Success: true, Data: map[string]interface{}{
						"reservation_id":  reservation.ReservationID,
						"reservation_key": reservation.ReservationKey,
					}}, nil
				},
				CompensateFunc: func(ctx context.Context, instance *model.SagaInstance) error {
					orderID, err := dataString(instance, "order_id")
					if err != nil {
						return err
					}
					key := model.ReservationKey(model.ReferenceTypeOrder, orderID)
					return t.ReleaseReservation(ctx, key, "saga:"+instance.SagaID, "order fulfillment compensated")
				},
			},
			&FuncStep{
				StepID: "capture_payment",
				ExecuteFunc: func(ctx context.Context, instance *model.SagaInstance) (*model.StepResult, error) {
					inputs, err := capturePaymentEntries(instance)
					if err != nil {
						return nil, err
					}
					entries, err := t.RecordEntries(ctx, inputs)
					if err != nil {
						return nil, err
					}
					return &model.StepResult{Success: true, Data: map[string]interface{}{
						"entry_ids": entryIDs(entries),
					}}, nil
				},
				CompensateFunc: func(ctx context.Context, instance *model.SagaInstance) error {
					inputs, err := capturePaymentEntries(instance)
					if err != nil {
						return err
					}
					_, err = t.RecordEntries(ctx, reversalOf(instance, "capture_payment", inputs))
					return err
				},
			},
			&FuncStep{
				StepID: "commit_inventory",
				ExecuteFunc: func(ctx context.Context, instance *model.SagaInstance) (*model.StepResult, error) {
					orderID, err := dataString(instance, "order_id")
					if err != nil {
						return nil, err
					}
					key := model.ReservationKey(model.ReferenceTypeOrder, orderID)
					if err := t.CommitReservation(ctx, key, "saga:"+instance.SagaID, "order fulfilled"); err != nil {
						return nil, err
					}
					return &model.StepResult{Success: true, Data: map[string]interface{}{"reservation_key": key}}, nil
				},
				CompensateFunc: func(ctx context.Context, instance *model.SagaInstance) error {
					// A committed hold is a permanent deduction; stock goes
					// back through an explicit inventory adjustment, not here.
					logrus.WithField("saga_id", instance.SagaID).Warn("commit_inventory cannot be compensated automatically")
					return nil
				},
			},
		},
	}
}

// RefundSaga records the refund in the ledger, calls the payment gateway,
// settles the refund with matched entries, then returns the order's hold to
// stock. Payload keys: refund_id, order_id, payment_reference, amount,
// currency, customer_id, merchant_id, optional fee; inventory_id and quantity
// enable restocking when the order's hold was already committed.
func (t *Tandem) RefundSaga() *SagaDefinition {
	return &SagaDefinition{
		Type: SagaTypeRefund,
		Steps: []SagaStep{
			&FuncStep{
				StepID: "record_refund_initiated",
				ExecuteFunc: func(ctx context.Context, instance *model.SagaInstance) (*model.StepResult, error) {
					inputs, err := refundInitiatedEntries(instance)
					if err != nil {
						return nil, err
					}
					entries, err := t.RecordEntries(ctx, inputs)
					if err != nil {
						return nil, err
					}
					return &model.StepResult{Success: true, Data: map[string]interface{}{
						"entry_ids": entryIDs(entries),
					}}, nil
				},
				CompensateFunc: func(ctx context.Context, instance *model.SagaInstance) error {
					inputs, err := refundInitiatedEntries(instance)
					if err != nil {
						return err
					}
					_, err = t.RecordEntries(ctx, reversalOf(instance, "record_refund_initiated", inputs))
					return err
				},
			},
			&FuncStep{
				StepID: "gateway_refund",
				ExecuteFunc: func(ctx context.Context, instance *model.SagaInstance) (*model.StepResult, error) {
					paymentReference, err := dataString(instance, "payment_reference")
					if err != nil {
						return nil, err
					}
					amount, err := dataDecimal(instance, "amount")
					if err != nil {
						return nil, err
					}
					currency, err := dataString(instance, "currency")
					if err != nil {
						return nil, err
					}

					result, err := t.gateway.Refund(ctx, paymentReference, amount, currency)
					if err != nil {
						return nil, err
					}
					return &model.StepResult{Success: true, Data: map[string]interface{}{
						"gateway_refund_id": result.GatewayRefundID,
						"status":            result.Status,
					}}, nil
				},
				CompensateFunc: func(ctx context.Context, instance *model.SagaInstance) error {
					// Money already left through the gateway; reversing it is
					// an operator action, not an automatic one.
					logrus.WithField("saga_id", instance.SagaID).Warn("gateway_refund cannot be compensated automatically")
					return nil
				},
			},
			&FuncStep{
				StepID: "record_refund_processed",
				ExecuteFunc: func(ctx context.Context, instance *model.SagaInstance) (*model.StepResult, error) {
					inputs, err := refundProcessedEntries(instance)
					if err != nil {
						return nil, err
					}
					entries, err := t.RecordEntries(ctx, inputs)
					if err != nil {
						return nil, err
					}
					return &model.StepResult{Success: true, Data: map[string]interface{}{
						"entry_ids": entryIDs(entries),
					}}, nil
				},
			},
			&FuncStep{
				StepID: "release_reservation",
				ExecuteFunc: func(ctx context.Context, instance *model.SagaInstance) (*model.StepResult, error) {
					orderID, err := dataString(instance, "order_id")
					if err != nil {
						return nil, err
					}
					key := model.ReservationKey(model.ReferenceTypeOrder, orderID)

					err = t.ReleaseReservation(ctx, key, "saga:"+instance.SagaID, "order refunded")
					switch apierror.Code(err) {
					case apierror.ErrNotFound:
						// Nothing was ever reserved for this order.
						return &model.StepResult{Success: true, Data: map[string]interface{}{"released": false}}, nil
					case apierror.ErrInvalidState:
						// The fulfilled order's hold is already committed; its
						// stock comes back through an explicit adjustment.
						inventoryID, idErr := dataString(instance, "inventory_id")
						quantity, qtyErr := dataInt(instance, "quantity")
						if idErr != nil || qtyErr != nil {
							logrus.WithField("saga_id", instance.SagaID).Warn("refunded order has a committed hold and no restock details")
							return &model.StepResult{Success: true, Data: map[string]interface{}{"released": false}}, nil
						}
						if err := t.AdjustInventoryQuantity(ctx, inventoryID, quantity); err != nil {
							return nil, err
						}
						return &model.StepResult{Success: true, Data: map[string]interface{}{"released": false, "restocked": quantity}}, nil
					}
					if err != nil {
						return nil, err
					}
					return &model.StepResult{Success: true, Data: map[string]interface{}{"released": true}}, nil
				},
				// Stock return is terminal, like a commit; nothing to undo.
			},
		},
	}
}

func capturePaymentEntries(instance *model.SagaInstance) ([]*model.LedgerEntryInput, error) {
	orderID, err := dataString(instance, "order_id")
	if err != nil {
		return nil, err
	}
	amount, err := dataDecimal(instance, "amount")
	if err != nil {
		return nil, err
	}
	currency, err := dataString(instance, "currency")
	if err != nil {
		return nil, err
	}
	customerID, err := dataString(instance, "customer_id")
	if err != nil {
		return nil, err
	}
	merchantID, err := dataString(instance, "merchant_id")
	if err != nil {
		return nil, err
	}

	return assignEntryIDs(instance, "capture_payment", []*model.LedgerEntryInput{
		{
			SubjectID:   orderID,
			EntryType:   model.EntryTypePaymentCaptured,
			AccountType: model.AccountTypeCustomer,
			AccountID:   customerID,
			Amount:      amount.Neg(),
			Currency:    currency,
			Description: fmt.Sprintf("Payment captured for order %s", orderID),
			Reference:   instance.SagaID,
		},
		{
			SubjectID:   orderID,
			EntryType:   model.EntryTypePaymentCaptured,
			AccountType: model.AccountTypeMerchant,
			AccountID:   merchantID,
			Amount:      amount,
			Currency:    currency,
			Description: fmt.Sprintf("Payment received for order %s", orderID),
			Reference:   instance.SagaID,
		},
	}), nil
}

func refundInitiatedEntries(instance *model.SagaInstance) ([]*model.LedgerEntryInput, error) {
	refundID, err := dataString(instance, "refund_id")
	if err != nil {
		return nil, err
	}
	amount, err := dataDecimal(instance, "amount")
	if err != nil {
		return nil, err
	}
	currency, err := dataString(instance, "currency")
	if err != nil {
		return nil, err
	}
	merchantID, err := dataString(instance, "merchant_id")
	if err != nil {
		return nil, err
	}

	return assignEntryIDs(instance, "record_refund_initiated", []*model.LedgerEntryInput{
		{
			SubjectID:   refundID,
			EntryType:   model.EntryTypeRefundInitiated,
			AccountType: model.AccountTypeMerchant,
			AccountID:   merchantID,
			Amount:      amount.Neg(),
			Currency:    currency,
			Description: fmt.Sprintf("Refund %s initiated", refundID),
			Reference:   instance.SagaID,
		},
		{
			SubjectID:   refundID,
			EntryType:   model.EntryTypeRefundInitiated,
			AccountType: model.AccountTypeEscrow,
			Amount:      amount,
			Currency:    currency,
			Description: fmt.Sprintf("Refund %s held in escrow", refundID),
			Reference:   instance.SagaID,
		},
	}), nil
}

func refundProcessedEntries(instance *model.SagaInstance) ([]*model.LedgerEntryInput, error) {
	refundID, err := dataString(instance, "refund_id")
	if err != nil {
		return nil, err
	}
	amount, err := dataDecimal(instance, "amount")
	if err != nil {
		return nil, err
	}
	currency, err := dataString(instance, "currency")
	if err != nil {
		return nil, err
	}
	customerID, err := dataString(instance, "customer_id")
	if err != nil {
		return nil, err
	}

	inputs := []*model.LedgerEntryInput{
		{
			SubjectID:   refundID,
			EntryType:   model.EntryTypeRefundProcessed,
			AccountType: model.AccountTypeEscrow,
			Amount:      amount.Neg(),
			Currency:    currency,
			Description: fmt.Sprintf("Refund %s released from escrow", refundID),
			Reference:   instance.SagaID,
		},
		{
			SubjectID:   refundID,
			EntryType:   model.EntryTypeRefundProcessed,
			AccountType: model.AccountTypeCustomer,
			AccountID:   customerID,
			Amount:      amount,
			Currency:    currency,
			Description: fmt.Sprintf("Refund %s returned to customer", refundID),
			Reference:   instance.SagaID,
		},
	}

	if fee, err := dataDecimal(instance, "fee"); err == nil && fee.IsPositive() {
		inputs = append(inputs,
			&model.LedgerEntryInput{
				SubjectID:   refundID,
				EntryType:   model.EntryTypeFeeDeducted,
				AccountType: model.AccountTypePlatform,
				Amount:      fee.Neg(),
				Currency:    currency,
				Description: fmt.Sprintf("Gateway fee for refund %s", refundID),
				Reference:   instance.SagaID,
			},
			&model.LedgerEntryInput{
				SubjectID:   refundID,
				EntryType:   model.EntryTypeFeeDeducted,
				AccountType: model.AccountTypeGateway,
				Amount:      fee,
				Currency:    currency,
				Description: fmt.Sprintf("Gateway fee collected for refund %s", refundID),
				Reference:   instance.SagaID,
			},
		)
	}

	return assignEntryIDs(instance, "record_refund_processed", inputs), nil
}

// assignEntryIDs derives each entry's id from the saga, the step and the
// entry's position. A step re-executed after a crash re-posts the batch under
// the same ids and the ledger's unique entry id drops the duplicates, keeping
// the subject balanced.
func assignEntryIDs(instance *model.SagaInstance, stepID string, inputs []*model.LedgerEntryInput) []*model.LedgerEntryInput {
	for i, input := range inputs {
		input.EntryID = model.DeterministicUUIDWithSuffix("ent", instance.SagaID, stepID, strconv.Itoa(i))
	}
	return inputs
}

// reversalOf mirrors a set of entries with negated amounts and REVERSAL type,
// used by ledger-writing steps to compensate. The reversals carry their own
// deterministic ids so a repeated compensation cannot double-post either.
func reversalOf(instance *model.SagaInstance, stepID string, inputs []*model.LedgerEntryInput) []*model.LedgerEntryInput {
	reversed := make([]*model.LedgerEntryInput, 0, len(inputs))
	for _, input := range inputs {
		reversed = append(reversed, &model.LedgerEntryInput{
			SubjectID:   input.SubjectID,
			EntryType:   model.EntryTypeReversal,
			AccountType: input.AccountType,
			AccountID:   input.AccountID,
			Amount:      input.Amount.Neg(),
			Currency:    input.Currency,
			Description: "Reversal: " + input.Description,
			Reference:   input.Reference,
			CreatedBy:   input.CreatedBy,
		})
	}
	return assignEntryIDs(instance, stepID+"_reversal", reversed)
}

func entryIDs(entries []*model.LedgerEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.EntryID)
	}
	return ids
}

func dataString(instance *model.SagaInstance, key string) (string, error) {
	value, ok := instance.Data[key].(string)
	if !ok || value == "" {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Saga payload missing '%s'", key), nil)
	}
	return value, nil
}

// dataInt reads a whole number from the payload. JSON round-trips numbers as
// float64, so both forms are accepted.
func dataInt(instance *model.SagaInstance, key string) (int64, error) {
	switch value := instance.Data[key].(type) {
	case float64:
		return int64(value), nil
	case int64:
		return value, nil
	case int:
		return int64(value), nil
	}
	return 0, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Saga payload missing numeric '%s'", key), nil)
}

func dataDecimal(instance *model.SagaInstance, key string) (decimal.Decimal, error) {
	switch value := instance.Data[key].(type) {
	case float64:
		return decimal.NewFromFloat(value), nil
	case string:
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Saga payload '%s' is not a valid amount", key), err)
		}
		return parsed, nil
	case int64:
		return decimal.NewFromInt(value), nil
	case int:
		return decimal.NewFromInt(int64(value)), nil
	}
	return decimal.Zero, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Saga payload missing amount '%s'", key), nil)
}
