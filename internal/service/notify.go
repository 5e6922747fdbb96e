package service

import (
	"context"
	"fmt"
	"log"

	"schoolfest-backend/internal/mailer"
	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/repository"
)

// Notifier turns settlement outcomes into emails. Everything in here is
// best effort: a failed send is logged and dropped, never retried into
// payment state.
type Notifier interface {
	HandleOutcome(ctx context.Context, outcome Outcome)
}

type notifierImpl struct {
	batchRepo   repository.BatchRepository
	schoolRepo  repository.SchoolRepository
	paymentRepo repository.PaymentRepository
	mail        mailer.Mailer
}

func NewNotifier(
	batchRepo repository.BatchRepository,
	schoolRepo repository.SchoolRepository,
	paymentRepo repository.PaymentRepository,
	mail mailer.Mailer,
) Notifier {
	return &notifierImpl{
		batchRepo:   batchRepo,
		schoolRepo:  schoolRepo,
		paymentRepo: paymentRepo,
		mail:        mail,
	}
}

func (n *notifierImpl) HandleOutcome(ctx context.Context, outcome Outcome) {
	batch, err := n.batchRepo.FindByID(ctx, outcome.BatchID)
	if err != nil {
		log.Printf("[notify] load batch %s: %v", outcome.BatchID, err)
		return
	}
	school, err := n.schoolRepo.FindByID(ctx, batch.SchoolID)
	if err != nil {
		log.Printf("[notify] load school %s: %v", batch.SchoolID, err)
		return
	}

	var msg *mailer.Message
	switch outcome.Kind {
	case OutcomePaymentCompleted:
		msg = n.completedMessage(ctx, batch, school, outcome)
	case OutcomePaymentFailed:
		msg = &mailer.Message{
			To:      school.Email,
			Subject: fmt.Sprintf("Payment failed for batch %s", batch.Reference),
			HTML: fmt.Sprintf(
				"<p>Dear %s,</p><p>Your payment for registration batch <b>%s</b> did not go through: %s.</p><p>You can start a new payment from your dashboard at any time.</p>",
				school.Name, batch.Reference, outcome.Reason),
		}
	case OutcomeOfflineSubmitted:
		msg = &mailer.Message{
			To:      school.Email,
			Subject: fmt.Sprintf("Offline payment received for batch %s", batch.Reference),
			HTML: fmt.Sprintf(
				"<p>Dear %s,</p><p>We received your bank transfer details for batch <b>%s</b> (%s %s). Our team will verify the payment and confirm your registrations shortly.</p>",
				school.Name, batch.Reference, batch.Currency, batch.TotalAmount.String()),
		}
	case OutcomeOfflineRejected:
		msg = &mailer.Message{
			To:      school.Email,
			Subject: fmt.Sprintf("Offline payment rejected for batch %s", batch.Reference),
			HTML: fmt.Sprintf(
				"<p>Dear %s,</p><p>Your offline payment for batch <b>%s</b> was rejected: %s.</p><p>The batch is open again, please submit a corrected payment.</p>",
				school.Name, batch.Reference, outcome.Reason),
		}
	default:
		return
	}

	if err := n.mail.Send(ctx, msg); err != nil {
		log.Printf("[notify] send %s mail for batch %s: %v", outcome.Kind, batch.Reference, err)
	}
}

func (n *notifierImpl) completedMessage(ctx context.Context, batch *model.Batch, school *model.School, outcome Outcome) *mailer.Message {
	invoiceLine := "<p>Your invoice is being prepared and will appear on your dashboard shortly.</p>"
	if batch.InvoicePDFURL != "" {
		invoiceLine = fmt.Sprintf("<p>Your invoice: <a href=%q>%s</a></p>", batch.InvoicePDFURL, batch.InvoiceNumber)
	}

	subject := fmt.Sprintf("Payment confirmed for batch %s", batch.Reference)
	intro := fmt.Sprintf(
		"<p>Dear %s,</p><p>We received your payment of <b>%s %s</b> for registration batch <b>%s</b>. All %d registrations are confirmed.</p>",
		school.Name, batch.Currency, batch.TotalAmount.String(), batch.Reference, batch.StudentCount)

	if payment, err := n.paymentRepo.FindByID(ctx, outcome.PaymentID); err == nil &&
		payment.PaymentMode == model.PaymentModeOffline {
		subject = fmt.Sprintf("Offline payment verified for batch %s", batch.Reference)
		intro = fmt.Sprintf(
			"<p>Dear %s,</p><p>Your bank transfer of <b>%s %s</b> for batch <b>%s</b> has been verified. All %d registrations are confirmed.</p>",
			school.Name, batch.Currency, batch.TotalAmount.String(), batch.Reference, batch.StudentCount)
	}

	return &mailer.Message{
		To:      school.Email,
		Subject: subject,
		HTML:    intro + invoiceLine,
	}
}
