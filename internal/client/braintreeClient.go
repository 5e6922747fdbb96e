package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"schoolfest-backend/internal/config"
	"schoolfest-backend/internal/money"

	"github.com/braintree-go/braintree-go"
)

type braintreeGatewayImpl struct {
	gateway *braintree.Braintree
}

// NewBraintreeGateway initializes the Braintree SDK gateway.
func NewBraintreeGateway(cfg *config.Braintree) Gateway {
	env := braintree.Sandbox
	if cfg.Environment == "production" {
		env = braintree.Production
	}

	gateway := braintree.New(
		env,
		cfg.MerchantID,
		cfg.PublicKey,
		cfg.PrivateKey,
	)

	return &braintreeGatewayImpl{
		gateway: gateway,
	}
}

func (c *braintreeGatewayImpl) Name() string {
	return "braintree"
}

// ClientToken mints the token the Braintree drop-in UI needs before it can
// collect a payment method.
func (c *braintreeGatewayImpl) ClientToken(ctx context.Context) (string, error) {
	token, err := c.gateway.ClientToken().Generate(ctx)
	if err != nil {
		return "", fmt.Errorf("generate braintree client token: %w", err)
	}
	return token, nil
}

func (c *braintreeGatewayImpl) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	if req.PaymentMethodNonce == "" {
		return nil, fmt.Errorf("braintree requires a payment method nonce")
	}

	minor, err := money.ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("convert amount for braintree: %w", err)
	}

	// Braintree expects NewDecimal(unscaled, scale), so 100.50 INR
	// becomes NewDecimal(10050, 2).
	btAmount := braintree.NewDecimal(minor, int(money.Exponent(req.Currency)))

	txReq := &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             btAmount,
		PaymentMethodNonce: req.PaymentMethodNonce,
		OrderId:            req.Reference,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true, // Captures the funds immediately
		},
	}

	tx, err := c.gateway.Transaction().Create(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("create braintree transaction: %w", err)
	}

	if tx.Status == braintree.TransactionStatusProcessorDeclined {
		return nil, fmt.Errorf("transaction declined by processor: %s", tx.ProcessorResponseText)
	}

	return &Intent{ID: tx.Id}, nil
}

func (c *braintreeGatewayImpl) GetIntent(ctx context.Context, orderID string) (*IntentStatus, error) {
	tx, err := c.gateway.Transaction().Find(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find braintree transaction: %w", err)
	}

	st := &IntentStatus{
		Status:   mapBraintreeStatus(tx),
		ChargeID: tx.Id,
	}
	if st.Status == IntentFailed {
		st.Reason = fmt.Sprintf("transaction %s", tx.Status)
		if tx.ProcessorResponseText != "" {
			st.Reason = tx.ProcessorResponseText
		}
	}

	return st, nil
}

func (c *braintreeGatewayImpl) ParseWebhook(body []byte, header http.Header) (*Event, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse braintree webhook form: %w", err)
	}

	notification, err := c.gateway.WebhookNotification().Parse(
		form.Get("bt_signature"),
		form.Get("bt_payload"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	out := &Event{
		Kind: EventUnknown,
		Type: notification.Kind,
		Raw:  body,
	}

	var txID string
	if notification.Subject != nil && notification.Subject.Transaction != nil {
		txID = notification.Subject.Transaction.Id
		// The sale's transaction id is what we stored as the order id.
		out.OrderID = txID
		out.ChargeID = txID
	}
	// Braintree has no per-delivery event id. The notification timestamp is
	// stable across re-deliveries, so it keeps the synthesized id stable too.
	out.ID = fmt.Sprintf("bt-%s-%s-%d", notification.Kind, txID, notification.Timestamp.Unix())

	switch notification.Kind {
	case braintree.TransactionSettledWebhook:
		out.Kind = EventPaymentSucceeded
	case braintree.TransactionSettlementDeclinedWebhook:
		out.Kind = EventPaymentFailed
		out.FailureReason = "settlement declined by processor"
	}

	return out, nil
}

func mapBraintreeStatus(tx *braintree.Transaction) IntentState {
	switch tx.Status {
	case braintree.TransactionStatusSubmittedForSettlement,
		braintree.TransactionStatusSettling,
		braintree.TransactionStatusSettlementPending,
		braintree.TransactionStatusSettled:
		return IntentSucceeded
	case braintree.TransactionStatusProcessorDeclined,
		braintree.TransactionStatusGatewayRejected,
		braintree.TransactionStatusSettlementDeclined,
		braintree.TransactionStatusFailed,
		braintree.TransactionStatusVoided,
		braintree.TransactionStatusAuthorizationExpired:
		return IntentFailed
	default:
		return IntentPending
	}
}
