// Package fiat handles cash entering and leaving the platform: bank accounts,
// deposit requests and withdrawal requests.
package fiat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aidin1998/talabin/internal/events"
	"github.com/Aidin1998/talabin/internal/ledger"
	"github.com/Aidin1998/talabin/internal/notification"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/models"
	"github.com/Aidin1998/talabin/pkg/validation"
)

// Config holds the transfer limits.
type Config struct {
	MinDepositAmount    decimal.Decimal
	MinWithdrawalAmount decimal.Decimal
	FeePercentage       decimal.Decimal
	MaxReceiptSize      int64
}

// DefaultConfig returns a 10,000 deposit minimum, a 50,000 withdrawal
// minimum, a 0.5% withdrawal fee and a 5MB receipt limit.
func DefaultConfig() Config {
	return Config{
		MinDepositAmount:    decimal.NewFromInt(10000),
		MinWithdrawalAmount: decimal.NewFromInt(50000),
		FeePercentage:       decimal.RequireFromString("0.5"),
		MaxReceiptSize:      validation.DefaultMaxReceiptSize,
	}
}

// Service implements bank account, deposit and withdrawal operations
type Service struct {
	logger    *zap.Logger
	ledger    *ledger.Service
	notifier  notification.Notifier
	events    *events.Publisher
	receipts  ReceiptStore
	validator *validation.Validator
	cfg       Config
	now       func() time.Time
}

// Options wires the optional collaborators of a Service.
type Options struct {
	Notifier notification.Notifier
	Events   *events.Publisher
	Receipts ReceiptStore
}

// NewService creates a new fiat service
func NewService(logger *zap.Logger, ledgerSvc *ledger.Service, cfg Config, opts Options) *Service {
	return &Service{
		logger:    logger,
		ledger:    ledgerSvc,
		notifier:  opts.Notifier,
		events:    opts.Events,
		receipts:  opts.Receipts,
		validator: validation.NewValidator(logger),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) db(ctx context.Context) *gorm.DB {
	return s.ledger.DB().WithContext(ctx)
}

// lockRow loads a request row with SELECT ... FOR UPDATE.
func lockRow[T any](tx *gorm.DB, what string, query string, args ...interface{}) (*T, error) {
	var row T
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(query, args...).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound.Explain("%s not found", what)
		}
		return nil, fmt.Errorf("failed to load %s: %w", what, err)
	}
	return &row, nil
}

// phoneOf returns the phone number SMS notifications go to.
func (s *Service) phoneOf(ctx context.Context, userID uuid.UUID) string {
	var user models.User
	if err := s.db(ctx).Select("phone_number").Where("id = ?", userID).First(&user).Error; err != nil {
		s.logger.Warn("failed to load user phone", zap.String("user_id", userID.String()), zap.Error(err))
		return ""
	}
	return user.PhoneNumber
}

// notify runs an SMS send after commit. Failures are only logged.
func (s *Service) notify(ctx context.Context, userID uuid.UUID, kind string, send func(phone string) bool) {
	if s.notifier == nil {
		return
	}
	phone := s.phoneOf(ctx, userID)
	if phone == "" {
		return
	}
	if !send(phone) {
		s.logger.Warn("sms notification not delivered",
			zap.String("user_id", userID.String()),
			zap.String("kind", kind),
		)
	}
}
