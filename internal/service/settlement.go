package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettlementService owns every transition out of a live payment. All
// writes to Payment, Batch and Registration rows triggered by a gateway
// result go through here, inside one transaction per transition.
type SettlementService interface {
	// CompleteByOrderID settles the payment identified by its gateway
	// order id. Safe to call any number of times for the same order.
	CompleteByOrderID(ctx context.Context, orderID, chargeID, receiptURL string) error
	FailByOrderID(ctx context.Context, orderID, reason string) error
	// RecordRefundByOrderID records a refund against a settled payment.
	// The amount is the cumulative refunded total as reported by the
	// gateway. Batch and registrations are never reversed.
	RecordRefundByOrderID(ctx context.Context, orderID string, amount decimal.Decimal) error
	VerifyOfflinePayment(ctx context.Context, paymentID, verifiedBy string) error
	RejectOfflinePayment(ctx context.Context, paymentID, rejectedBy, reason string) error
}

type settlementServiceImpl struct {
	txRunner         repository.TxRunner
	paymentRepo      repository.PaymentRepository
	batchRepo        repository.BatchRepository
	registrationRepo repository.RegistrationRepository
	events           *Dispatcher
}

func NewSettlementService(
	txRunner repository.TxRunner,
	paymentRepo repository.PaymentRepository,
	batchRepo repository.BatchRepository,
	registrationRepo repository.RegistrationRepository,
	events *Dispatcher,
) SettlementService {
	return &settlementServiceImpl{
		txRunner:         txRunner,
		paymentRepo:      paymentRepo,
		batchRepo:        batchRepo,
		registrationRepo: registrationRepo,
		events:           events,
	}
}

func (s *settlementServiceImpl) CompleteByOrderID(ctx context.Context, orderID, chargeID, receiptURL string) error {
	payment, err := s.paymentRepo.FindByGatewayOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("find payment for order %s: %w", orderID, err)
	}
	return s.complete(ctx, payment, chargeID, receiptURL, "", time.Now())
}

// complete performs the success transition. The row-level status guard
// inside MarkCompleted makes the whole thing idempotent: a repeat or a
// lost race changes zero rows and everything downstream is skipped.
func (s *settlementServiceImpl) complete(ctx context.Context, payment *model.Payment, chargeID, receiptURL, verifiedBy string, paidAt time.Time) error {
	if payment.Status == model.PaymentCompleted || payment.Status == model.PaymentRefunded {
		log.Printf("[settlement] payment %s already settled, ignoring repeat", payment.ID)
		return nil
	}

	settled := false
	err := s.txRunner.RunInTx(ctx, func(tx *gorm.DB) error {
		alreadyDone, err := s.paymentRepo.HasCompletedForBatch(ctx, tx, payment.BatchID)
		if err != nil {
			return err
		}
		if alreadyDone {
			// A different payment already settled this batch. Close this
			// one out so it cannot settle a second time later.
			if _, err := s.paymentRepo.MarkFailed(ctx, tx, payment.ID, "batch already settled by another payment"); err != nil {
				return err
			}
			log.Printf("[settlement] batch %s already settled, failing extra payment %s", payment.BatchID, payment.ID)
			return nil
		}

		rows, err := s.paymentRepo.MarkCompleted(ctx, tx, payment.ID, chargeID, receiptURL, paidAt)
		if err != nil {
			return err
		}
		if rows == 0 {
			log.Printf("[settlement] payment %s left settleable state concurrently, skipping", payment.ID)
			return nil
		}

		if _, err := s.registrationRepo.ConfirmByBatch(ctx, tx, payment.BatchID); err != nil {
			return err
		}

		target := model.BatchSubmitted
		if verifiedBy != "" {
			target = model.BatchConfirmed
		}
		if err := s.batchRepo.MarkSettled(ctx, tx, payment.BatchID, target); err != nil {
			return err
		}
		if verifiedBy != "" {
			if err := s.batchRepo.SetOfflineVerified(ctx, tx, payment.BatchID, verifiedBy, paidAt); err != nil {
				return err
			}
		}

		settled = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("settle payment %s: %w", payment.ID, err)
	}

	if settled {
		log.Printf("[settlement] payment %s completed, batch %s settled", payment.ID, payment.BatchID)
		s.events.Publish(Outcome{
			Kind:      OutcomePaymentCompleted,
			BatchID:   payment.BatchID,
			PaymentID: payment.ID,
		})
	}
	return nil
}

func (s *settlementServiceImpl) FailByOrderID(ctx context.Context, orderID, reason string) error {
	payment, err := s.paymentRepo.FindByGatewayOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("find payment for order %s: %w", orderID, err)
	}

	// A completed payment never regresses, even if the gateway delivers
	// results out of order.
	if payment.Status == model.PaymentCompleted || payment.Status == model.PaymentRefunded {
		log.Printf("[settlement] ignoring failure event for settled payment %s", payment.ID)
		return nil
	}
	if payment.Status == model.PaymentFailed {
		return nil
	}
	if reason == "" {
		reason = "payment failed"
	}

	failed := false
	err = s.txRunner.RunInTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.paymentRepo.MarkFailed(ctx, tx, payment.ID, reason)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		if err := s.batchRepo.MarkPaymentFailed(ctx, tx, payment.BatchID); err != nil {
			return err
		}
		failed = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail payment %s: %w", payment.ID, err)
	}

	if failed {
		log.Printf("[settlement] payment %s failed: %s", payment.ID, reason)
		s.events.Publish(Outcome{
			Kind:      OutcomePaymentFailed,
			BatchID:   payment.BatchID,
			PaymentID: payment.ID,
			Reason:    reason,
		})
	}
	return nil
}

func (s *settlementServiceImpl) RecordRefundByOrderID(ctx context.Context, orderID string, amount decimal.Decimal) error {
	payment, err := s.paymentRepo.FindByGatewayOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("find payment for order %s: %w", orderID, err)
	}

	if payment.Status != model.PaymentCompleted && payment.Status != model.PaymentRefunded {
		log.Printf("[settlement] refund event for unsettled payment %s, ignoring", payment.ID)
		return nil
	}

	full := amount.GreaterThanOrEqual(payment.Amount)
	err = s.txRunner.RunInTx(ctx, func(tx *gorm.DB) error {
		return s.paymentRepo.RecordRefund(ctx, tx, payment.ID, amount, full)
	})
	if err != nil {
		return fmt.Errorf("record refund for payment %s: %w", payment.ID, err)
	}

	log.Printf("[settlement] payment %s refunded amount=%s full=%t", payment.ID, amount.String(), full)
	return nil
}

func (s *settlementServiceImpl) VerifyOfflinePayment(ctx context.Context, paymentID, verifiedBy string) error {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	if payment.PaymentMode != model.PaymentModeOffline {
		return fmt.Errorf("%w: payment %s is not an offline payment", ErrInvalidState, paymentID)
	}
	if payment.Status == model.PaymentCompleted {
		return nil
	}
	if payment.Status != model.PaymentPendingVerification {
		return fmt.Errorf("%w: payment %s is %s, expected %s", ErrInvalidState, paymentID, payment.Status, model.PaymentPendingVerification)
	}
	return s.complete(ctx, payment, "", "", verifiedBy, time.Now())
}

func (s *settlementServiceImpl) RejectOfflinePayment(ctx context.Context, paymentID, rejectedBy, reason string) error {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	if payment.PaymentMode != model.PaymentModeOffline {
		return fmt.Errorf("%w: payment %s is not an offline payment", ErrInvalidState, paymentID)
	}
	if payment.Status == model.PaymentFailed {
		return nil
	}
	if payment.Status != model.PaymentPendingVerification {
		return fmt.Errorf("%w: payment %s is %s, expected %s", ErrInvalidState, paymentID, payment.Status, model.PaymentPendingVerification)
	}
	if reason == "" {
		reason = "offline payment rejected"
	}

	rejected := false
	err = s.txRunner.RunInTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.paymentRepo.MarkFailed(ctx, tx, payment.ID, reason)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		// The batch goes back to draft so the school can pay again.
		if _, err := s.batchRepo.Reopen(ctx, tx, payment.BatchID); err != nil {
			return err
		}
		rejected = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("reject payment %s: %w", paymentID, err)
	}

	if rejected {
		log.Printf("[settlement] offline payment %s rejected by %s: %s", paymentID, rejectedBy, reason)
		s.events.Publish(Outcome{
			Kind:      OutcomeOfflineRejected,
			BatchID:   payment.BatchID,
			PaymentID: payment.ID,
			Reason:    reason,
		})
	}
	return nil
}
