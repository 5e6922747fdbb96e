package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"schoolfest-backend/internal/config"
	"schoolfest-backend/internal/money"

	"github.com/stripe/stripe-go/v74"
	stripeclient "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

type stripeGatewayImpl struct {
	api           *stripeclient.API
	webhookSecret string
}

// NewStripeGateway initializes the Stripe SDK with its own API instance so
// nothing leaks through the package-global client.
func NewStripeGateway(cfg *config.Stripe) Gateway {
	api := &stripeclient.API{}
	api.Init(cfg.SecretKey, nil)

	return &stripeGatewayImpl{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}
}

func (c *stripeGatewayImpl) Name() string {
	return "stripe"
}

func (c *stripeGatewayImpl) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	minor, err := money.ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("convert amount for stripe: %w", err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(minor),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(fmt.Sprintf("Registration batch %s", req.Reference)),
	}
	params.Context = ctx
	if req.SchoolEmail != "" {
		params.ReceiptEmail = stripe.String(req.SchoolEmail)
	}
	params.AddMetadata("batch_reference", req.Reference)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe payment intent: %w", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (c *stripeGatewayImpl) GetIntent(ctx context.Context, orderID string) (*IntentStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := c.api.PaymentIntents.Get(orderID, params)
	if err != nil {
		return nil, fmt.Errorf("fetch stripe payment intent: %w", err)
	}

	st := &IntentStatus{Status: IntentPending}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		st.Status = IntentSucceeded
		if pi.LatestCharge != nil {
			st.ChargeID = pi.LatestCharge.ID
			st.ReceiptURL = pi.LatestCharge.ReceiptURL
		}
	case stripe.PaymentIntentStatusCanceled:
		st.Status = IntentFailed
		st.Reason = "payment canceled"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			st.Reason = pi.LastPaymentError.Msg
		}
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A fresh intent and a declined attempt both sit in this status;
		// only the latter carries a payment error.
		if pi.LastPaymentError != nil {
			st.Status = IntentFailed
			st.Reason = pi.LastPaymentError.Msg
		}
	}

	return st, nil
}

func (c *stripeGatewayImpl) ParseWebhook(body []byte, header http.Header) (*Event, error) {
	ev, err := webhook.ConstructEvent(body, header.Get("Stripe-Signature"), c.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	out := &Event{
		ID:   ev.ID,
		Kind: EventUnknown,
		Type: string(ev.Type),
		Raw:  ev.Data.Raw,
	}

	switch string(ev.Type) {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent payload: %w", err)
		}
		out.Kind = EventPaymentSucceeded
		out.OrderID = pi.ID
		if pi.LatestCharge != nil {
			out.ChargeID = pi.LatestCharge.ID
			out.ReceiptURL = pi.LatestCharge.ReceiptURL
		}

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent payload: %w", err)
		}
		out.Kind = EventPaymentFailed
		out.OrderID = pi.ID
		out.FailureReason = "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			out.FailureReason = pi.LastPaymentError.Msg
		}

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge payload: %w", err)
		}
		out.Kind = EventRefund
		out.ChargeID = ch.ID
		if ch.PaymentIntent != nil {
			out.OrderID = ch.PaymentIntent.ID
		}
		// AmountRefunded is cumulative across partial refunds.
		out.RefundAmount = money.FromMinorUnits(ch.AmountRefunded, strings.ToUpper(string(ch.Currency)))

	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session payload: %w", err)
		}
		out.Kind = EventCheckoutCompleted
		if cs.PaymentIntent != nil {
			out.OrderID = cs.PaymentIntent.ID
		}
	}

	return out, nil
}
