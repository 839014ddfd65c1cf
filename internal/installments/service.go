// Package installments sells gold on monthly payment plans.
package installments

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
	"github.com/Aidin1998/talabin/internal/events"
	"github.com/Aidin1998/talabin/internal/ledger"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/metrics"
	"github.com/Aidin1998/talabin/pkg/models"
)

// Service manages plans, subscriptions and their payments
type Service struct {
	logger *zap.Logger
	ledger *ledger.Service
	events *events.Publisher
	now    func() time.Time
}

func NewService(logger *zap.Logger, ledgerSvc *ledger.Service, publisher *events.Publisher) *Service {
	return &Service{
		logger: logger,
		ledger: ledgerSvc,
		events: publisher,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) db(ctx context.Context) *gorm.DB {
	return s.ledger.DB().WithContext(ctx)
}

func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Subscribe opens an installment on an active plan. The interest is added
// up front and split into equal monthly payments, the first due one month
// from today.
func (s *Service) Subscribe(ctx context.Context, userID, planID uuid.UUID, total decimal.Decimal) (*models.Installment, error) {
	plan, err := s.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !total.IsPositive() {
		return nil, errors.InvalidAmount.Explain("amount must be positive")
	}
	if total.LessThan(plan.MinAmount) || total.GreaterThan(plan.MaxAmount) {
		return nil, errors.InvalidAmount.Explain("amount must be between %s and %s IRR", plan.MinAmount, plan.MaxAmount)
	}

	total = models.RoundCash(total)
	withInterest := total.Add(models.PercentOf(total, plan.InterestRate))
	monthly := models.RoundCash(withInterest.Div(decimal.NewFromInt(int64(plan.DurationMonths))))
	start := s.today()

	installment := &models.Installment{
		UserID:         userID,
		PlanID:         plan.ID,
		TotalAmount:    withInterest,
		MonthlyPayment: monthly,
		Status:         models.InstallmentStatusActive,
		StartDate:      start,
		EndDate:        models.AddMonths(start, plan.DurationMonths),
	}
	for i := 1; i <= plan.DurationMonths; i++ {
		installment.Payments = append(installment.Payments, models.InstallmentPayment{
			PaymentNumber: i,
			Amount:        monthly,
			DueDate:       models.AddMonths(start, i),
			Status:        models.PaymentStatusPending,
		})
	}

	// the payments are created with the installment in one transaction
	if err := s.db(ctx).Create(installment).Error; err != nil {
		return nil, fmt.Errorf("failed to create installment: %w", dbutil.WrapError(err))
	}
	installment.Plan = plan

	s.logger.Info("installment created",
		zap.String("installment_id", installment.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("total_amount", withInterest.String()),
		zap.Int("payments", plan.DurationMonths),
	)
	s.events.Emit(ctx, events.InstallmentCreated, &userID, installment.ID.String(), map[string]interface{}{
		"plan_id":         plan.ID.String(),
		"total_amount":    withInterest.String(),
		"monthly_payment": monthly.String(),
	})
	return installment, nil
}

// Pay settles one pending payment from the wallet. Paying the last open
// payment completes the installment.
func (s *Service) Pay(ctx context.Context, userID, installmentID, paymentID uuid.UUID) (*models.InstallmentPayment, error) {
	var (
		payment   *models.InstallmentPayment
		completed bool
	)
	_, err := s.ledger.WithWallet(ctx, userID, func(tx *gorm.DB, w *models.Wallet) error {
		var installment models.Installment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", installmentID, userID).
			First(&installment).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFound.Explain("installment not found")
			}
			return fmt.Errorf("failed to load installment: %w", err)
		}

		var p models.InstallmentPayment
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND installment_id = ?", paymentID, installment.ID).
			First(&p).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFound.Explain("payment not found")
			}
			return fmt.Errorf("failed to load payment: %w", err)
		}
		if p.Status != models.PaymentStatusPending {
			return errors.InvalidStateTransition.Explain("payment %d is %s", p.PaymentNumber, p.Status)
		}
		if w.AvailableIRR().LessThan(p.Amount) {
			return errors.InsufficientFunds.Explain("insufficient IRR balance: available %s, required %s", w.AvailableIRR(), p.Amount)
		}
		if err := s.ledger.Deduct(tx, w, p.Amount, decimal.Zero); err != nil {
			return err
		}

		now := s.now()
		paid := s.today()
		p.Status = models.PaymentStatusPaid
		p.PaidDate = &paid
		p.TransactionID = models.NewTransactionID(now)
		p.UpdatedAt = now
		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
		if err := s.ledger.Record(tx, w, &models.WalletTransaction{
			TransactionType: models.TransactionTypeInstallment,
			Status:          models.TransactionStatusCompleted,
			AmountIRR:       p.Amount,
			Description:     fmt.Sprintf("installment payment %d", p.PaymentNumber),
			ReferenceID:     p.TransactionID,
		}); err != nil {
			return err
		}

		var open int64
		err = tx.Model(&models.InstallmentPayment{}).
			Where("installment_id = ? AND status IN ?", installment.ID,
				[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusOverdue}).
			Count(&open).Error
		if err != nil {
			return fmt.Errorf("failed to count open payments: %w", err)
		}
		if open == 0 && installment.Status.CanTransitionTo(models.InstallmentStatusCompleted) {
			err := tx.Model(&models.Installment{}).Where("id = ?", installment.ID).
				Updates(map[string]interface{}{"status": models.InstallmentStatusCompleted, "updated_at": now}).Error
			if err != nil {
				return fmt.Errorf("failed to complete installment: %w", err)
			}
			completed = true
		}

		payment = &p
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.InstallmentPayments.Inc()
	s.logger.Info("installment payment made",
		zap.String("installment_id", installmentID.String()),
		zap.Int("payment_number", payment.PaymentNumber),
		zap.Bool("installment_completed", completed),
	)
	s.events.Emit(ctx, events.InstallmentPaid, &userID, payment.TransactionID, map[string]interface{}{
		"installment_id": installmentID.String(),
		"payment_number": payment.PaymentNumber,
		"amount":         payment.Amount.String(),
		"completed":      completed,
	})
	return payment, nil
}

// Get returns one of the user's installments with its plan and payments.
func (s *Service) Get(ctx context.Context, userID, installmentID uuid.UUID) (*models.Installment, error) {
	installment, err := dbutil.FindOne[models.Installment](s.db(ctx).
		Preload("Plan").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("payment_number ASC") }).
		Where("id = ? AND user_id = ?", installmentID, userID))
	if errors.Is(err, errors.NotFound) {
		return nil, errors.NotFound.Explain("installment not found")
	}
	return installment, err
}

// Filter narrows List.
type Filter struct {
	Status models.InstallmentStatus
	Page   dbutil.Page
}

// List returns the user's installments, newest first, and the number of
// matches.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter Filter) ([]models.Installment, int64, error) {
	query := s.db(ctx).Model(&models.Installment{}).Where("user_id = ?", userID)
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, 0, errors.Invalid.Explain("unknown installment status %q", filter.Status)
		}
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count installments: %w", err)
	}
	var installments []models.Installment
	if err := filter.Page.Apply(query.Preload("Plan").Order("created_at DESC")).Find(&installments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list installments: %w", err)
	}
	return installments, total, nil
}
