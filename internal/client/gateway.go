package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// ErrBadSignature is returned by ParseWebhook when the payload fails
// signature or checksum verification. Handlers map it to 400 so the
// gateway does not retry a forged or corrupted delivery.
var ErrBadSignature = errors.New("webhook signature verification failed")

// IntentRequest carries everything a gateway needs to open a payment.
type IntentRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	SchoolName  string
	SchoolEmail string
	// PaymentMethodNonce is only meaningful for gateways that charge a
	// client-collected payment method at create time (Braintree).
	PaymentMethodNonce string
	Metadata           map[string]string
}

// Intent is the gateway's handle for a freshly created payment.
// ClientSecret and RedirectURL carry the handoff to the payer; which of
// them is set depends on the provider.
type Intent struct {
	ID           string
	ClientSecret string
	RedirectURL  string
}

type IntentState string

const (
	IntentPending   IntentState = "pending"
	IntentSucceeded IntentState = "succeeded"
	IntentFailed    IntentState = "failed"
	IntentRefunded  IntentState = "refunded"
)

// IntentStatus is the gateway's current view of an intent, fetched on
// demand during client-driven verification.
type IntentStatus struct {
	Status     IntentState
	ChargeID   string
	ReceiptURL string
	Reason     string
}

type EventKind string

const (
	EventPaymentSucceeded  EventKind = "payment_succeeded"
	EventPaymentFailed     EventKind = "payment_failed"
	EventRefund            EventKind = "refund"
	EventCheckoutCompleted EventKind = "checkout_completed"
	EventUnknown           EventKind = "unknown"
)

// Event is a verified, normalized webhook delivery. ID is unique per
// delivery within a gateway; providers without a native event id get a
// synthesized one so dedup still works.
type Event struct {
	ID            string
	Kind          EventKind
	Type          string
	OrderID       string
	ChargeID      string
	ReceiptURL    string
	RefundAmount  decimal.Decimal
	FailureReason string
	Raw           []byte
}

type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, orderID string) (*IntentStatus, error)
	// ParseWebhook verifies the delivery and normalizes it. It must reject
	// anything unsigned or mis-signed with ErrBadSignature before looking
	// at the payload.
	ParseWebhook(body []byte, header http.Header) (*Event, error)
}

// ClientTokenProvider is implemented by gateways whose client SDK needs a
// server-minted token before it can collect a payment method.
type ClientTokenProvider interface {
	ClientToken(ctx context.Context) (string, error)
}

type Registry map[string]Gateway

func NewRegistry() Registry {
	return make(Registry)
}

func (r Registry) Register(gw Gateway) {
	r[gw.Name()] = gw
}

func (r Registry) Get(name string) (Gateway, error) {
	gw, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment gateway %q", name)
	}
	return gw, nil
}
