package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tandemhq/tandem/config"
	"github.com/tandemhq/tandem/internal/apierror"
	"github.com/tandemhq/tandem/internal/request"
)

// RefundResult is the gateway's acknowledgement of a refund instruction.
type RefundResult struct {
	GatewayRefundID string `json:"gateway_refund_id"`
	Status          string `json:"status"`
}

// Client is the payment collaborator contract. Implementations must classify
// failures through the apierror taxonomy so saga steps can decide between
// retrying and compensating.
type Client interface {
	Refund(ctx context.Context, paymentReference string, amount decimal.Decimal, currency string) (*RefundResult, error)
}

// HTTPClient talks to the payment provider's refund endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

// NewHTTPClient builds a client from the gateway section of the configuration.
func NewHTTPClient(conf *config.Configuration) *HTTPClient {
	timeout := time.Duration(conf.PaymentGateway.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: conf.PaymentGateway.Url,
		apiKey:  conf.PaymentGateway.ApiKey,
		timeout: timeout,
	}
}

type refundRequest struct {
	PaymentReference string          `json:"payment_reference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

// Refund instructs the provider to refund amount against paymentReference.
// Network faults and 5xx responses map to the retryable error classes;
// 4xx responses are the caller's fault and are never retried.
func (c *HTTPClient) Refund(ctx context.Context, paymentReference string, amount decimal.Decimal, currency string) (*RefundResult, error) {
	payload, err := request.ToJsonReq(&refundRequest{
		PaymentReference: paymentReference,
		Amount:           amount,
		Currency:         currency,
	})
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encode refund request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/refunds", c.baseURL), payload)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to build refund request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var result RefundResult
	resp, err := request.Call(req, &result)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &result, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return nil, apierror.NewAPIError(apierror.ErrTimeout, "Gateway timed out processing refund", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, apierror.NewAPIError(apierror.ErrGateway, fmt.Sprintf("Gateway returned %d for refund", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payment reference '%s' not found at gateway", paymentReference), resp.StatusCode)
	default:
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Gateway rejected refund with %d", resp.StatusCode), resp.StatusCode)
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierror.NewAPIError(apierror.ErrTimeout, "Refund call timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return apierror.NewAPIError(apierror.ErrTimeout, "Refund call timed out", err)
	}
	return apierror.NewAPIError(apierror.ErrNetwork, "Refund call failed", err)
}
