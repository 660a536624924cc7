package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tandemhq/tandem/config"
	"github.com/tandemhq/tandem/internal/apierror"
)

func newTestClient() *HTTPClient {
	conf := &config.Configuration{}
	conf.PaymentGateway.Url = "https://payments.example.com"
	conf.PaymentGateway.ApiKey = "sk_test"
	return NewHTTPClient(conf)
}

func TestRefund_Success(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://payments.example.com/refunds",
		httpmock.NewJsonResponderOrPanic(200, map[string]string{
			"gateway_refund_id": "re_123",
			"status":            "succeeded",
		}))

	client := newTestClient()
	result, err := client.Refund(context.Background(), "pay_1", decimal.NewFromInt(100), "USD")
	assert.NoError(t, err)
	assert.Equal(t, "re_123", result.GatewayRefundID)
	assert.Equal(t, "succeeded", result.Status)
}

func TestRefund_GatewayError_IsRetryable(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://payments.example.com/refunds",
		httpmock.NewJsonResponderOrPanic(502, map[string]string{"error": "bad gateway"}))

	client := newTestClient()
	_, err := client.Refund(context.Background(), "pay_1", decimal.NewFromInt(100), "USD")
	assert.Error(t, err)
	assert.True(t, apierror.Retryable(err))
	assert.Equal(t, apierror.ErrGateway, apierror.Code(err))
}

func TestRefund_Timeout_IsRetryable(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://payments.example.com/refunds",
		httpmock.NewJsonResponderOrPanic(http.StatusGatewayTimeout, map[string]string{"error": "timeout"}))

	client := newTestClient()
	_, err := client.Refund(context.Background(), "pay_1", decimal.NewFromInt(100), "USD")
	assert.Error(t, err)
	assert.True(t, apierror.Retryable(err))
	assert.Equal(t, apierror.ErrTimeout, apierror.Code(err))
}

func TestRefund_ClientError_NotRetryable(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://payments.example.com/refunds",
		httpmock.NewJsonResponderOrPanic(422, map[string]string{"error": "already refunded"}))

	client := newTestClient()
	_, err := client.Refund(context.Background(), "pay_1", decimal.NewFromInt(100), "USD")
	assert.Error(t, err)
	assert.False(t, apierror.Retryable(err))
}
