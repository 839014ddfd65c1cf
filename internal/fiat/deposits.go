package fiat

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/common/dbutil"
	"github.com/Aidin1998/talabin/internal/events"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/metrics"
	"github.com/Aidin1998/talabin/pkg/models"
	"github.com/Aidin1998/talabin/pkg/validation"
)

// CreateDeposit opens a pending deposit request. Nothing is credited until
// staff verify it.
func (s *Service) CreateDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod) (*models.DepositRequest, error) {
	if !method.Valid() {
		return nil, errors.Invalid.Explain("unknown payment method %q", method)
	}
	if !amount.IsPositive() {
		return nil, errors.InvalidAmount.Explain("amount must be positive")
	}
	if amount.LessThan(s.cfg.MinDepositAmount) {
		return nil, errors.InvalidAmount.Explain("minimum deposit amount is %s IRR", s.cfg.MinDepositAmount)
	}

	now := s.now()
	deposit := &models.DepositRequest{
		UserID:        userID,
		Amount:        models.RoundCash(amount),
		Status:        models.DepositStatusPending,
		PaymentMethod: method,
		TransactionID: models.NewTransactionID(now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db(ctx).Create(deposit).Error; err != nil {
		return nil, fmt.Errorf("failed to create deposit: %w", dbutil.WrapError(err))
	}

	metrics.DepositTransitions.WithLabelValues(string(deposit.Status)).Inc()
	s.logger.Info("deposit requested",
		zap.String("transaction_id", deposit.TransactionID),
		zap.String("user_id", userID.String()),
		zap.String("amount", deposit.Amount.String()),
	)
	return deposit, nil
}

// AttachReceipt stores a payment receipt and marks the deposit as paid.
func (s *Service) AttachReceipt(ctx context.Context, userID, depositID uuid.UUID, filename string, size int64, body io.Reader) (*models.DepositRequest, error) {
	if err := validation.ValidateReceipt(filename, size, s.cfg.MaxReceiptSize); err != nil {
		return nil, err
	}
	deposit, err := s.GetDeposit(ctx, userID, depositID)
	if err != nil {
		return nil, err
	}
	if !deposit.Status.CanTransitionTo(models.DepositStatusPaid) {
		return nil, errors.InvalidStateTransition.Explain("deposit %s is %s", deposit.TransactionID, deposit.Status)
	}

	ref := filepath.Base(filename)
	if s.receipts != nil && body != nil {
		if ref, err = s.receipts.Save(ctx, filename, body); err != nil {
			return nil, err
		}
	}

	return s.moveDeposit(ctx, "id = ? AND user_id = ?", []interface{}{depositID, userID}, models.DepositStatusPaid,
		func(d *models.DepositRequest) { d.ReceiptRef = ref })
}

// VerifyDeposit credits the deposit amount to the user's wallet and journals
// it, in one wallet transaction.
func (s *Service) VerifyDeposit(ctx context.Context, depositID uuid.UUID) (*models.DepositRequest, error) {
	existing, err := dbutil.FindOne[models.DepositRequest](s.db(ctx).Where("id = ?", depositID))
	if err != nil {
		return nil, notFound(err, "deposit")
	}

	var deposit *models.DepositRequest
	_, err = s.ledger.WithWallet(ctx, existing.UserID, func(tx *gorm.DB, w *models.Wallet) error {
		d, err := lockRow[models.DepositRequest](tx, "deposit", "id = ?", depositID)
		if err != nil {
			return err
		}
		if !d.Status.CanTransitionTo(models.DepositStatusVerified) {
			return errors.InvalidStateTransition.Explain("deposit %s is %s", d.TransactionID, d.Status)
		}
		if err := s.ledger.Add(tx, w, d.Amount, decimal.Zero); err != nil {
			return err
		}
		if err := s.ledger.Record(tx, w, &models.WalletTransaction{
			TransactionType: models.TransactionTypeDeposit,
			Status:          models.TransactionStatusCompleted,
			AmountIRR:       d.Amount,
			Description:     fmt.Sprintf("deposit via %s", d.PaymentMethod),
			ReferenceID:     d.TransactionID,
		}); err != nil {
			return err
		}

		verified := s.now()
		d.Status = models.DepositStatusVerified
		d.VerifiedAt = &verified
		d.UpdatedAt = verified
		if err := tx.Save(d).Error; err != nil {
			return fmt.Errorf("failed to save deposit: %w", err)
		}
		deposit = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.DepositTransitions.WithLabelValues(string(deposit.Status)).Inc()
	s.logger.Info("deposit verified",
		zap.String("transaction_id", deposit.TransactionID),
		zap.String("user_id", deposit.UserID.String()),
		zap.String("amount", deposit.Amount.String()),
	)
	userID := deposit.UserID
	s.events.Emit(ctx, events.DepositVerified, &userID, deposit.TransactionID, map[string]interface{}{
		"amount": deposit.Amount.String(),
	})
	s.notify(ctx, userID, "deposit_approved", func(phone string) bool {
		return s.notifier.SendDepositApproved(ctx, phone, deposit.Amount)
	})
	return deposit, nil
}

// RejectDeposit closes a pending or paid deposit without crediting it.
func (s *Service) RejectDeposit(ctx context.Context, depositID uuid.UUID, reason string) (*models.DepositRequest, error) {
	reason = s.validator.SanitizeInput(reason)
	deposit, err := s.moveDeposit(ctx, "id = ?", []interface{}{depositID}, models.DepositStatusRejected,
		func(d *models.DepositRequest) { d.Notes = reason })
	if err != nil {
		return nil, err
	}
	userID := deposit.UserID
	s.events.Emit(ctx, events.DepositRejected, &userID, deposit.TransactionID, map[string]interface{}{"reason": reason})
	return deposit, nil
}

// CancelDeposit lets the owner withdraw a deposit request that is still pending.
func (s *Service) CancelDeposit(ctx context.Context, userID, depositID uuid.UUID) (*models.DepositRequest, error) {
	return s.moveDeposit(ctx, "id = ? AND user_id = ?", []interface{}{depositID, userID}, models.DepositStatusCancelled, nil)
}

// moveDeposit transitions a deposit that does not touch the ledger.
func (s *Service) moveDeposit(ctx context.Context, query string, args []interface{}, next models.DepositStatus, mutate func(*models.DepositRequest)) (*models.DepositRequest, error) {
	var deposit *models.DepositRequest
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := lockRow[models.DepositRequest](tx, "deposit", query, args...)
		if err != nil {
			return err
		}
		if !d.Status.CanTransitionTo(next) {
			return errors.InvalidStateTransition.Explain("deposit %s cannot move from %s to %s", d.TransactionID, d.Status, next)
		}
		d.Status = next
		d.UpdatedAt = s.now()
		if mutate != nil {
			mutate(d)
		}
		if err := tx.Save(d).Error; err != nil {
			return fmt.Errorf("failed to save deposit: %w", err)
		}
		deposit = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.DepositTransitions.WithLabelValues(string(next)).Inc()
	s.logger.Info("deposit status changed",
		zap.String("transaction_id", deposit.TransactionID),
		zap.String("status", string(next)),
	)
	return deposit, nil
}

// GetDeposit returns one of the user's deposits.
func (s *Service) GetDeposit(ctx context.Context, userID, depositID uuid.UUID) (*models.DepositRequest, error) {
	d, err := dbutil.FindOne[models.DepositRequest](s.db(ctx).Where("id = ? AND user_id = ?", depositID, userID))
	return d, notFound(err, "deposit")
}

// DepositFilter narrows ListDeposits. A nil UserID lists every user's deposits.
type DepositFilter struct {
	UserID uuid.UUID
	Status models.DepositStatus
	Page   dbutil.Page
}

// ListDeposits returns deposits newest first and the number of matches.
func (s *Service) ListDeposits(ctx context.Context, filter DepositFilter) ([]models.DepositRequest, int64, error) {
	query := s.db(ctx).Model(&models.DepositRequest{})
	if filter.UserID != uuid.Nil {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, 0, errors.Invalid.Explain("unknown deposit status %q", filter.Status)
		}
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count deposits: %w", err)
	}
	var deposits []models.DepositRequest
	if err := filter.Page.Apply(query.Order("created_at DESC")).Find(&deposits).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list deposits: %w", err)
	}
	return deposits, total, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, errors.NotFound) {
		return errors.NotFound.Explain("%s not found", what)
	}
	return err
}
