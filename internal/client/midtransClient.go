package client

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"schoolfest-backend/internal/config"
	"schoolfest-backend/internal/money"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
)

type midtransGatewayImpl struct {
	snap      snap.Client
	core      coreapi.Client
	serverKey string
}

func NewMidtransGateway(cfg *config.Midtrans) Gateway {
	env := midtrans.Sandbox
	if cfg.Environment == "production" {
		env = midtrans.Production
	}

	impl := &midtransGatewayImpl{serverKey: cfg.ServerKey}
	impl.snap.New(cfg.ServerKey, env)
	impl.core.New(cfg.ServerKey, env)

	return impl
}

func (c *midtransGatewayImpl) Name() string {
	return "midtrans"
}

func (c *midtransGatewayImpl) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	gross, err := money.ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("convert amount for midtrans: %w", err)
	}

	// Midtrans has no separate intent id, the merchant order_id is the
	// join key it echoes back in every notification. It must be fresh per
	// attempt because Midtrans rejects a reused order_id, and a batch can
	// be paid again after a failed attempt.
	orderID := fmt.Sprintf("%s-%s", req.Reference, uuid.NewString()[:8])

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.SchoolName,
			Email: req.SchoolEmail,
		},
	}

	resp, snapErr := c.snap.CreateTransaction(snapReq)
	if snapErr != nil {
		return nil, fmt.Errorf("create midtrans snap transaction: %w", snapErr)
	}

	return &Intent{
		ID:           orderID,
		ClientSecret: resp.Token,
		RedirectURL:  resp.RedirectURL,
	}, nil
}

func (c *midtransGatewayImpl) GetIntent(ctx context.Context, orderID string) (*IntentStatus, error) {
	resp, coreErr := c.core.CheckTransaction(orderID)
	if coreErr != nil {
		return nil, fmt.Errorf("check midtrans transaction: %w", coreErr)
	}

	st := &IntentStatus{
		Status:   mapMidtransStatus(resp.TransactionStatus, resp.FraudStatus),
		ChargeID: resp.TransactionID,
	}
	if st.Status == IntentFailed {
		st.Reason = fmt.Sprintf("transaction %s", resp.TransactionStatus)
		if resp.StatusMessage != "" {
			st.Reason = resp.StatusMessage
		}
	}

	return st, nil
}

func (c *midtransGatewayImpl) ParseWebhook(body []byte, header http.Header) (*Event, error) {
	var note struct {
		TransactionID     string `json:"transaction_id"`
		OrderID           string `json:"order_id"`
		TransactionStatus string `json:"transaction_status"`
		FraudStatus       string `json:"fraud_status"`
		StatusCode        string `json:"status_code"`
		StatusMessage     string `json:"status_message"`
		GrossAmount       string `json:"gross_amount"`
		RefundAmount      string `json:"refund_amount"`
		SignatureKey      string `json:"signature_key"`
	}
	if err := json.Unmarshal(body, &note); err != nil {
		return nil, fmt.Errorf("decode midtrans notification: %w", err)
	}

	// Midtrans signs with SHA512(order_id + status_code + gross_amount + server_key).
	sum := sha512.Sum512([]byte(note.OrderID + note.StatusCode + note.GrossAmount + c.serverKey))
	if hex.EncodeToString(sum[:]) != note.SignatureKey {
		return nil, ErrBadSignature
	}

	out := &Event{
		// No native event id, so synthesize one. Re-deliveries of the same
		// transition collide on it, distinct transitions do not.
		ID:       fmt.Sprintf("mt-%s-%s", note.OrderID, note.TransactionStatus),
		Kind:     EventUnknown,
		Type:     note.TransactionStatus,
		OrderID:  note.OrderID,
		ChargeID: note.TransactionID,
		Raw:      body,
	}

	switch mapMidtransStatus(note.TransactionStatus, note.FraudStatus) {
	case IntentSucceeded:
		out.Kind = EventPaymentSucceeded
	case IntentFailed:
		out.Kind = EventPaymentFailed
		out.FailureReason = fmt.Sprintf("transaction %s", note.TransactionStatus)
		if note.StatusMessage != "" {
			out.FailureReason = note.StatusMessage
		}
	case IntentRefunded:
		out.Kind = EventRefund
		raw := note.RefundAmount
		if raw == "" {
			raw = note.GrossAmount
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse midtrans refund amount %q: %w", raw, err)
		}
		out.RefundAmount = amount
	}

	return out, nil
}

func mapMidtransStatus(transactionStatus, fraudStatus string) IntentState {
	switch transactionStatus {
	case "settlement":
		return IntentSucceeded
	case "capture":
		if fraudStatus == "challenge" {
			return IntentPending
		}
		return IntentSucceeded
	case "deny", "cancel", "expire", "failure":
		return IntentFailed
	case "refund", "partial_refund":
		return IntentRefunded
	default:
		return IntentPending
	}
}
