// Package ledger owns wallet balances. Every balance change happens inside a
// database transaction that holds the wallet row lock.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aidin1998/talabin/common/dbutil"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/metrics"
	"github.com/Aidin1998/talabin/pkg/models"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 20 * time.Millisecond
)

// TxFunc runs inside a wallet transaction. Returning an error rolls back
// every write made through tx.
type TxFunc func(tx *gorm.DB, wallet *models.Wallet) error

// Service persists wallet primitives and the transaction journal
type Service struct {
	logger        *zap.Logger
	db            *gorm.DB
	cache         BalanceCache
	retryAttempts int
	retryDelay    time.Duration
}

// NewService creates a ledger service. cache may be nil.
func NewService(logger *zap.Logger, db *gorm.DB, cache BalanceCache) *Service {
	return &Service{
		logger:        logger,
		db:            db,
		cache:         cache,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
	}
}

// DB returns the underlying database handle.
func (s *Service) DB() *gorm.DB {
	return s.db
}

// WithWallet opens a transaction, locks the user's wallet row and runs fn.
// Serialization failures and deadlocks restart the whole transaction. The
// committed wallet is returned and pushed to the balance cache.
func (s *Service) WithWallet(ctx context.Context, userID uuid.UUID, fn TxFunc) (*models.Wallet, error) {
	var (
		wallet *models.Wallet
		err    error
	)

	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			w, err := LockWallet(tx, userID)
			if err != nil {
				return err
			}
			if err := fn(tx, w); err != nil {
				return err
			}
			wallet = w
			return nil
		})
		if err == nil || !dbutil.IsRetryable(err) {
			break
		}

		metrics.LedgerRetries.Inc()
		s.logger.Warn("retrying wallet transaction",
			zap.String("user_id", userID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retryDelay * time.Duration(attempt)):
		}
	}
	if err != nil {
		return nil, dbutil.WrapError(err)
	}

	s.cacheWallet(ctx, wallet)
	return wallet, nil
}

// LockWallet loads a wallet with SELECT ... FOR UPDATE.
func LockWallet(tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound.Explain("wallet not found for user %s", userID)
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &w, nil
}

// Freeze reserves available funds and persists the wallet.
func (s *Service) Freeze(tx *gorm.DB, w *models.Wallet, cash, gold decimal.Decimal) error {
	return s.apply(tx, w, "freeze", w.Freeze, cash, gold)
}

// Unfreeze releases reserved funds and persists the wallet.
func (s *Service) Unfreeze(tx *gorm.DB, w *models.Wallet, cash, gold decimal.Decimal) error {
	return s.apply(tx, w, "unfreeze", w.Unfreeze, cash, gold)
}

// Add credits the wallet and persists it.
func (s *Service) Add(tx *gorm.DB, w *models.Wallet, cash, gold decimal.Decimal) error {
	return s.apply(tx, w, "add", w.Add, cash, gold)
}

// Deduct debits the wallet and persists it.
func (s *Service) Deduct(tx *gorm.DB, w *models.Wallet, cash, gold decimal.Decimal) error {
	return s.apply(tx, w, "deduct", w.Deduct, cash, gold)
}

func (s *Service) apply(tx *gorm.DB, w *models.Wallet, op string, primitive func(cash, gold decimal.Decimal) error, cash, gold decimal.Decimal) error {
	if err := primitive(models.RoundCash(cash), models.RoundGold(gold)); err != nil {
		metrics.LedgerOperations.WithLabelValues(op, "rejected").Inc()
		return err
	}
	if err := saveBalances(tx, w); err != nil {
		metrics.LedgerOperations.WithLabelValues(op, "error").Inc()
		return err
	}
	metrics.LedgerOperations.WithLabelValues(op, "ok").Inc()
	return nil
}

// saveBalances writes the four balance columns in one statement.
func saveBalances(tx *gorm.DB, w *models.Wallet) error {
	w.UpdatedAt = time.Now().UTC()
	err := tx.Model(&models.Wallet{}).Where("id = ?", w.ID).Updates(map[string]interface{}{
		"balance_irr":         models.RoundCash(w.BalanceIRR),
		"gold_balance":        models.RoundGold(w.GoldBalance),
		"frozen_balance_irr":  models.RoundCash(w.FrozenBalanceIRR),
		"frozen_gold_balance": models.RoundGold(w.FrozenGoldBalance),
		"updated_at":          w.UpdatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update wallet balances: %w", err)
	}
	return nil
}

// Record appends a wallet transaction to the journal.
func (s *Service) Record(tx *gorm.DB, w *models.Wallet, entry *models.WalletTransaction) error {
	entry.WalletID = w.ID
	entry.AmountIRR = models.RoundCash(entry.AmountIRR)
	entry.AmountGold = models.RoundGold(entry.AmountGold)
	if entry.Status == "" {
		entry.Status = models.TransactionStatusCompleted
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record wallet transaction: %w", dbutil.WrapError(err))
	}
	return nil
}

// SetTransactionStatus moves the journal entries of a wallet that carry
// referenceID and txType to status. Only entries that may transition are
// touched.
func (s *Service) SetTransactionStatus(tx *gorm.DB, w *models.Wallet, txType models.TransactionType, referenceID string, status models.TransactionStatus) error {
	var entries []models.WalletTransaction
	err := tx.Where("wallet_id = ? AND transaction_type = ? AND reference_id = ?", w.ID, txType, referenceID).
		Find(&entries).Error
	if err != nil {
		return fmt.Errorf("failed to load wallet transactions: %w", err)
	}

	for _, e := range entries {
		if !e.Status.CanTransitionTo(status) {
			continue
		}
		err := tx.Model(&models.WalletTransaction{}).Where("id = ?", e.ID).
			Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}).Error
		if err != nil {
			return fmt.Errorf("failed to update wallet transaction: %w", err)
		}
	}
	return nil
}

// CreateWallet returns the user's wallet, creating an empty one if needed.
// A nil tx uses the service's own connection.
func (s *Service) CreateWallet(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	if tx == nil {
		tx = s.db.WithContext(ctx)
	}

	var w models.Wallet
	err := tx.Where(models.Wallet{UserID: userID}).FirstOrCreate(&w).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", dbutil.WrapError(err))
	}
	return &w, nil
}

// GetWallet returns a user's wallet, preferring the balance cache.
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if s.cache != nil {
		if w, err := s.cache.Get(ctx, userID); err == nil {
			return w, nil
		}
	}

	var w models.Wallet
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	s.cacheWallet(ctx, &w)
	return &w, nil
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	Type models.TransactionType
	Page dbutil.Page
}

// ListTransactions returns the user's journal, newest first, and the total
// number of matching entries.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]models.WalletTransaction, int64, error) {
	var w models.Wallet
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, 0, dbutil.WrapError(err)
	}

	query := s.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("wallet_id = ?", w.ID)
	if filter.Type != "" {
		if !filter.Type.Valid() {
			return nil, 0, errors.Invalid.Explain("unknown transaction type %q", filter.Type)
		}
		query = query.Where("transaction_type = ?", filter.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count wallet transactions: %w", err)
	}

	var entries []models.WalletTransaction
	if err := filter.Page.Apply(query.Order("created_at DESC")).Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return entries, total, nil
}

func (s *Service) cacheWallet(ctx context.Context, w *models.Wallet) {
	if s.cache == nil || w == nil {
		return
	}
	if err := s.cache.Set(ctx, w); err != nil {
		s.logger.Warn("failed to cache wallet", zap.String("user_id", w.UserID.String()), zap.Error(err))
		_ = s.cache.Delete(ctx, w.UserID)
	}
}
