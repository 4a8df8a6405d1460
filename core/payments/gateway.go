package payments

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway statuses as ZbPay reports them, on both the status endpoint and
// the webhook.
const (
	GatewayStatusPaid       = "PAID"
	GatewayStatusSuccessful = "SUCCESSFUL"
	GatewayStatusFailed     = "FAILED"
	GatewayStatusCanceled   = "CANCELED"
)

type (
	// InitiateRequest is the exact field set the gateway contract expects.
	// Extraneous fields have broken initiation on the gateway side before;
	// do not add any without re-verifying the contract.
	InitiateRequest struct {
		Amount         decimal.Decimal `json:"Amount"`
		CurrencyCode   string          `json:"CurrencyCode"`
		ReturnURL      string          `json:"returnUrl"`
		ResultURL      string          `json:"resultUrl"`
		OrderReference string          `json:"orderReference"`
		ItemName       string          `json:"itemName"`
	}

	InitiateResponse struct {
		PaymentURL    string `json:"paymentUrl"`
		TransactionID string `json:"transactionId"`
	}

	StatusResponse struct {
		Status string `json:"status"`
	}
)

// Gateway is the external payment gateway as the core needs it.
type Gateway interface {
	InitiateTransaction(ctx context.Context, req InitiateRequest) (InitiateResponse, error)
	CheckPayment(ctx context.Context, orderReference string) (StatusResponse, error)
}

// GatewayError marks a failure reported by (or reaching) the gateway:
// a non-2xx response, a non-JSON body or a transport error.
type GatewayError struct {
	Msg string
}

func (e *GatewayError) Error() string { return e.Msg }

// outcome classifies a gateway-reported status.
type outcome int

const (
	outcomePending outcome = iota
	outcomeSuccess
	outcomeFailure
)

// outcomeFor maps the gateway status vocabulary onto a settlement outcome.
// Anything unrecognised counts as still pending and leaves state unchanged.
func outcomeFor(gatewayStatus string) outcome {
	switch gatewayStatus {
	case GatewayStatusPaid, GatewayStatusSuccessful:
		return outcomeSuccess
	case GatewayStatusFailed, GatewayStatusCanceled:
		return outcomeFailure
	default:
		return outcomePending
	}
}
