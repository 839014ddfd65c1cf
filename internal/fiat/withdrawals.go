package fiat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/common/dbutil"
	"github.com/Aidin1998/talabin/internal/events"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/metrics"
	"github.com/Aidin1998/talabin/pkg/models"
)

// CreateWithdrawal freezes amount in the user's wallet and opens a pending
// withdrawal to one of the user's bank accounts. The available balance must
// also cover the fee, which is debited at completion.
func (s *Service) CreateWithdrawal(ctx context.Context, userID, bankAccountID uuid.UUID, amount decimal.Decimal) (*models.WithdrawalRequest, error) {
	if !amount.IsPositive() {
		return nil, errors.InvalidAmount.Explain("amount must be positive")
	}
	if amount.LessThan(s.cfg.MinWithdrawalAmount) {
		return nil, errors.InvalidAmount.Explain("minimum withdrawal amount is %s IRR", s.cfg.MinWithdrawalAmount)
	}
	amount = models.RoundCash(amount)
	fee := models.PercentOf(amount, s.cfg.FeePercentage)

	var withdrawal *models.WithdrawalRequest
	_, err := s.ledger.WithWallet(ctx, userID, func(tx *gorm.DB, w *models.Wallet) error {
		account, err := dbutil.FindOne[models.BankAccount](tx.Where("id = ? AND user_id = ?", bankAccountID, userID))
		if err != nil {
			return notFound(err, "bank account")
		}
		if required := amount.Add(fee); w.AvailableIRR().LessThan(required) {
			return errors.InsufficientFunds.Explain("insufficient IRR balance: available %s, required %s including fee", w.AvailableIRR(), required)
		}
		if err := s.ledger.Freeze(tx, w, amount, decimal.Zero); err != nil {
			return err
		}

		now := s.now()
		wr := &models.WithdrawalRequest{
			UserID:        userID,
			BankAccountID: &account.ID,
			Amount:        amount,
			Fee:           fee,
			Status:        models.WithdrawalStatusPending,
			TransactionID: models.NewTransactionID(now),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(wr).Error; err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", dbutil.WrapError(err))
		}
		if err := s.ledger.Record(tx, w, &models.WalletTransaction{
			TransactionType: models.TransactionTypeWithdraw,
			Status:          models.TransactionStatusPending,
			AmountIRR:       amount,
			Description:     fmt.Sprintf("withdrawal to %s", account.ShebaNumber),
			ReferenceID:     wr.TransactionID,
		}); err != nil {
			return err
		}
		withdrawal = wr
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalTransitions.WithLabelValues(string(withdrawal.Status)).Inc()
	s.logger.Info("withdrawal requested",
		zap.String("transaction_id", withdrawal.TransactionID),
		zap.String("user_id", userID.String()),
		zap.String("amount", withdrawal.Amount.String()),
	)
	s.events.Emit(ctx, events.WithdrawalCreated, &userID, withdrawal.TransactionID, map[string]interface{}{
		"amount": withdrawal.Amount.String(),
		"fee":    withdrawal.Fee.String(),
	})
	return withdrawal, nil
}

// ApproveWithdrawal accepts a pending withdrawal. The funds stay frozen.
func (s *Service) ApproveWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	withdrawal, err := s.advance(ctx, withdrawalID, models.WithdrawalStatusApproved)
	if err != nil {
		return nil, err
	}
	s.after(ctx, withdrawal, events.WithdrawalApproved)
	s.notify(ctx, withdrawal.UserID, "withdrawal_approved", func(phone string) bool {
		return s.notifier.SendWithdrawalApproved(ctx, phone, withdrawal.Amount)
	})
	return withdrawal, nil
}

// ProcessWithdrawal marks an approved withdrawal as handed to the bank. It
// can no longer be cancelled.
func (s *Service) ProcessWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	withdrawal, err := s.advance(ctx, withdrawalID, models.WithdrawalStatusProcessing)
	if err != nil {
		return nil, err
	}
	s.after(ctx, withdrawal, "")
	return withdrawal, nil
}

// advance moves a withdrawal to a status that has no ledger effect.
func (s *Service) advance(ctx context.Context, withdrawalID uuid.UUID, next models.WithdrawalStatus) (*models.WithdrawalRequest, error) {
	var withdrawal *models.WithdrawalRequest
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		wr, err := lockRow[models.WithdrawalRequest](tx, "withdrawal", "id = ?", withdrawalID)
		if err != nil {
			return err
		}
		if err := s.moveWithdrawal(tx, wr, next); err != nil {
			return err
		}
		withdrawal = wr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// CompleteWithdrawal settles an approved withdrawal: the amount frozen at
// creation is released, amount plus fee is debited and the journal entry is
// completed. The fee must come out of the unreserved balance so other pending
// withdrawals keep their reservations. An empty tracking code is replaced by a
// generated one.
func (s *Service) CompleteWithdrawal(ctx context.Context, withdrawalID uuid.UUID, trackingCode string) (*models.WithdrawalRequest, error) {
	existing, err := dbutil.FindOne[models.WithdrawalRequest](s.db(ctx).Where("id = ?", withdrawalID))
	if err != nil {
		return nil, notFound(err, "withdrawal")
	}

	var withdrawal *models.WithdrawalRequest
	_, err = s.ledger.WithWallet(ctx, existing.UserID, func(tx *gorm.DB, w *models.Wallet) error {
		wr, err := lockRow[models.WithdrawalRequest](tx, "withdrawal", "id = ?", withdrawalID)
		if err != nil {
			return err
		}
		if wr.Status != models.WithdrawalStatusApproved && wr.Status != models.WithdrawalStatusProcessing {
			return errors.InvalidStateTransition.Explain("withdrawal %s is %s", wr.TransactionID, wr.Status)
		}

		total := wr.Amount.Add(wr.Fee)
		if err := s.ledger.Unfreeze(tx, w, wr.Amount, decimal.Zero); err != nil {
			return err
		}
		if w.AvailableIRR().LessThan(total) {
			return errors.InsufficientFunds.Explain("insufficient IRR balance: available %s, required %s including fee", w.AvailableIRR(), total)
		}
		if err := s.ledger.Deduct(tx, w, total, decimal.Zero); err != nil {
			return err
		}
		if err := s.ledger.SetTransactionStatus(tx, w, models.TransactionTypeWithdraw, wr.TransactionID, models.TransactionStatusCompleted); err != nil {
			return err
		}

		wr.TrackingCode = strings.TrimSpace(trackingCode)
		if wr.TrackingCode == "" {
			wr.TrackingCode = models.NewTrackingCode(s.now())
		}
		processed := s.now()
		wr.ProcessedAt = &processed
		if err := s.moveWithdrawal(tx, wr, models.WithdrawalStatusCompleted); err != nil {
			return err
		}
		withdrawal = wr
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.after(ctx, withdrawal, events.WithdrawalCompleted)
	return withdrawal, nil
}

// RejectWithdrawal refuses a withdrawal and releases the frozen amount.
func (s *Service) RejectWithdrawal(ctx context.Context, withdrawalID uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	existing, err := dbutil.FindOne[models.WithdrawalRequest](s.db(ctx).Where("id = ?", withdrawalID))
	if err != nil {
		return nil, notFound(err, "withdrawal")
	}
	reason = s.validator.SanitizeInput(reason)
	withdrawal, err := s.release(ctx, existing.UserID, "id = ?", []interface{}{withdrawalID}, models.WithdrawalStatusRejected, reason)
	if err != nil {
		return nil, err
	}
	s.after(ctx, withdrawal, events.WithdrawalRejected)
	return withdrawal, nil
}

// CancelWithdrawal lets the owner cancel a pending or approved withdrawal and
// releases the frozen amount.
func (s *Service) CancelWithdrawal(ctx context.Context, userID, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	withdrawal, err := s.release(ctx, userID, "id = ? AND user_id = ?", []interface{}{withdrawalID, userID}, models.WithdrawalStatusCancelled, "")
	if err != nil {
		return nil, err
	}
	s.after(ctx, withdrawal, events.WithdrawalCancelled)
	return withdrawal, nil
}

// release closes a withdrawal without paying it out.
func (s *Service) release(ctx context.Context, userID uuid.UUID, query string, args []interface{}, next models.WithdrawalStatus, reason string) (*models.WithdrawalRequest, error) {
	var withdrawal *models.WithdrawalRequest
	_, err := s.ledger.WithWallet(ctx, userID, func(tx *gorm.DB, w *models.Wallet) error {
		wr, err := lockRow[models.WithdrawalRequest](tx, "withdrawal", query, args...)
		if err != nil {
			return err
		}
		if wr.Status != models.WithdrawalStatusPending && wr.Status != models.WithdrawalStatusApproved {
			return errors.InvalidStateTransition.Explain("withdrawal %s is %s", wr.TransactionID, wr.Status)
		}
		if err := s.ledger.Unfreeze(tx, w, wr.Amount, decimal.Zero); err != nil {
			return err
		}
		if err := s.ledger.SetTransactionStatus(tx, w, models.TransactionTypeWithdraw, wr.TransactionID, models.TransactionStatusCancelled); err != nil {
			return err
		}
		if reason != "" {
			wr.RejectionReason = reason
		}
		processed := s.now()
		wr.ProcessedAt = &processed
		if err := s.moveWithdrawal(tx, wr, next); err != nil {
			return err
		}
		withdrawal = wr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

func (s *Service) moveWithdrawal(tx *gorm.DB, wr *models.WithdrawalRequest, next models.WithdrawalStatus) error {
	if !wr.Status.CanTransitionTo(next) {
		return errors.InvalidStateTransition.Explain("withdrawal %s cannot move from %s to %s", wr.TransactionID, wr.Status, next)
	}
	wr.Status = next
	wr.UpdatedAt = s.now()
	if err := tx.Omit("BankAccount").Save(wr).Error; err != nil {
		return fmt.Errorf("failed to save withdrawal: %w", err)
	}
	return nil
}

func (s *Service) after(ctx context.Context, wr *models.WithdrawalRequest, eventType string) {
	metrics.WithdrawalTransitions.WithLabelValues(string(wr.Status)).Inc()
	s.logger.Info("withdrawal status changed",
		zap.String("transaction_id", wr.TransactionID),
		zap.String("user_id", wr.UserID.String()),
		zap.String("status", string(wr.Status)),
	)
	if eventType == "" {
		return
	}
	userID := wr.UserID
	s.events.Emit(ctx, eventType, &userID, wr.TransactionID, map[string]interface{}{
		"amount": wr.Amount.String(),
		"status": string(wr.Status),
	})
}

// GetWithdrawal returns one of the user's withdrawals with its bank account.
func (s *Service) GetWithdrawal(ctx context.Context, userID, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	wr, err := dbutil.FindOne[models.WithdrawalRequest](s.db(ctx).Preload("BankAccount").
		Where("id = ? AND user_id = ?", withdrawalID, userID))
	return wr, notFound(err, "withdrawal")
}

// WithdrawalFilter narrows ListWithdrawals. A nil UserID lists every user's
// withdrawals.
type WithdrawalFilter struct {
	UserID uuid.UUID
	Status models.WithdrawalStatus
	Page   dbutil.Page
}

// ListWithdrawals returns withdrawals newest first and the number of matches.
func (s *Service) ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]models.WithdrawalRequest, int64, error) {
	query := s.db(ctx).Model(&models.WithdrawalRequest{})
	if filter.UserID != uuid.Nil {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, 0, errors.Invalid.Explain("unknown withdrawal status %q", filter.Status)
		}
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}
	var withdrawals []models.WithdrawalRequest
	if err := filter.Page.Apply(query.Preload("BankAccount").Order("created_at DESC")).Find(&withdrawals).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return withdrawals, total, nil
}
