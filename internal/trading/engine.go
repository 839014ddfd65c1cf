// Package trading prices and settles gold orders against the ledger.
package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
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

// PriceSource resolves the active gold price.
type PriceSource interface {
	Current(ctx context.Context) (*models.GoldPrice, error)
}

// Config holds the order limits and fee.
type Config struct {
	FeePercentage     decimal.Decimal
	MinPurchaseAmount decimal.Decimal
	AmountStep        decimal.Decimal
}

// DefaultConfig returns a 0.5% fee, a 100,000 minimum and a 1,000 step.
func DefaultConfig() Config {
	return Config{
		FeePercentage:     decimal.RequireFromString("0.5"),
		MinPurchaseAmount: decimal.NewFromInt(100000),
		AmountStep:        decimal.NewFromInt(1000),
	}
}

// Quote is the priced form of an order request.
type Quote struct {
	OrderType        models.OrderType `json:"order_type"`
	AmountIRR        decimal.Decimal  `json:"amount_irr"`
	GoldPricePerGram decimal.Decimal  `json:"gold_price_per_gram"`
	GoldAmount       decimal.Decimal  `json:"gold_amount"`
	Fee              decimal.Decimal  `json:"fee"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
}

// Engine places, settles and cancels orders
type Engine struct {
	logger  *zap.Logger
	ledger  *ledger.Service
	prices  PriceSource
	events  *events.Publisher
	cfg     Config
	tracer  trace.Tracer
	settled metric.Int64Counter
	now     func() time.Time
}

func NewEngine(logger *zap.Logger, ledgerSvc *ledger.Service, prices PriceSource, publisher *events.Publisher, cfg Config) *Engine {
	settled, err := otel.Meter("talabin/trading").Int64Counter("trading.orders.settled",
		metric.WithDescription("Orders that reached a final settlement status"))
	if err != nil {
		logger.Warn("failed to create settlement counter", zap.Error(err))
	}
	return &Engine{
		logger:  logger,
		ledger:  ledgerSvc,
		prices:  prices,
		events:  publisher,
		cfg:     cfg,
		tracer:  otel.Tracer("talabin/trading"),
		settled: settled,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Preview prices an order without side effects.
func (e *Engine) Preview(ctx context.Context, orderType models.OrderType, amount decimal.Decimal) (*Quote, error) {
	if !orderType.Valid() {
		return nil, errors.Invalid.Explain("unknown order type %q", orderType)
	}
	if !amount.IsPositive() {
		return nil, errors.InvalidAmount.Explain("amount must be positive")
	}
	price, err := e.prices.Current(ctx)
	if err != nil {
		return nil, err
	}
	q := e.quote(price, orderType, amount)
	return &q, nil
}

func (e *Engine) quote(price *models.GoldPrice, orderType models.OrderType, amount decimal.Decimal) Quote {
	perGram := price.SellPrice
	if orderType == models.OrderTypeSell {
		perGram = price.BuyPrice
	}

	amount = models.RoundCash(amount)
	fee := models.PercentOf(amount, e.cfg.FeePercentage)
	total := amount.Add(fee)
	if orderType == models.OrderTypeSell {
		total = amount.Sub(fee)
	}

	return Quote{
		OrderType:        orderType,
		AmountIRR:        amount,
		GoldPricePerGram: perGram,
		GoldAmount:       models.RoundGold(amount.Div(perGram)),
		Fee:              fee,
		TotalAmount:      models.RoundCash(total),
	}
}

// validate checks the requested amount against the configured limits.
func (e *Engine) validate(orderType models.OrderType, amount decimal.Decimal) error {
	if !orderType.Valid() {
		return errors.Invalid.Explain("unknown order type %q", orderType)
	}
	if !amount.IsPositive() {
		return errors.InvalidAmount.Explain("amount must be positive")
	}
	if amount.LessThan(e.cfg.MinPurchaseAmount) {
		return errors.InvalidAmount.Explain("minimum order amount is %s IRR", e.cfg.MinPurchaseAmount)
	}
	if e.cfg.AmountStep.IsPositive() && !amount.Mod(e.cfg.AmountStep).IsZero() {
		return errors.InvalidAmount.Explain("amount must be a multiple of %s IRR", e.cfg.AmountStep)
	}
	return nil
}

func (e *Engine) newOrder(userID uuid.UUID, q Quote) *models.Order {
	now := e.now()
	return &models.Order{
		UserID:           userID,
		OrderNumber:      models.NewTransactionID(now),
		OrderType:        q.OrderType,
		Status:           models.OrderStatusPending,
		GoldAmount:       q.GoldAmount,
		GoldPricePerGram: q.GoldPricePerGram,
		AmountIRR:        q.AmountIRR,
		Fee:              q.Fee,
		TotalAmount:      q.TotalAmount,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Place validates, prices and settles an order in one wallet transaction.
// An order that fails on funds is committed as failed and InsufficientFunds
// is returned together with it.
func (e *Engine) Place(ctx context.Context, userID uuid.UUID, orderType models.OrderType, amount decimal.Decimal) (*models.Order, error) {
	ctx, span := e.tracer.Start(ctx, "trading.Place", trace.WithAttributes(
		attribute.String("order_type", string(orderType)),
		attribute.String("amount_irr", amount.String()),
	))
	defer span.End()

	if err := e.validate(orderType, amount); err != nil {
		return nil, e.spanError(span, err)
	}
	price, err := e.prices.Current(ctx)
	if err != nil {
		return nil, e.spanError(span, err)
	}
	template := e.newOrder(userID, e.quote(price, orderType, amount))

	start := time.Now()
	var (
		order     *models.Order
		settleErr error
	)
	_, err = e.ledger.WithWallet(ctx, userID, func(tx *gorm.DB, w *models.Wallet) error {
		// a retried transaction starts again from the pending order
		fresh := *template
		order = &fresh
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", dbutil.WrapError(err))
		}
		settleErr = e.settle(tx, w, order)
		if settleErr != nil && !errors.Is(settleErr, errors.InsufficientFunds) {
			return settleErr
		}
		return nil
	})
	if err != nil {
		return nil, e.spanError(span, err)
	}

	e.afterSettle(ctx, order, time.Since(start))
	span.SetAttributes(attribute.String("order_number", order.OrderNumber), attribute.String("status", string(order.Status)))
	if settleErr != nil {
		return order, e.spanError(span, settleErr)
	}
	return order, nil
}

// Submit validates, prices and stores an order as pending without touching
// the ledger.
func (e *Engine) Submit(ctx context.Context, userID uuid.UUID, orderType models.OrderType, amount decimal.Decimal) (*models.Order, error) {
	if err := e.validate(orderType, amount); err != nil {
		return nil, err
	}
	price, err := e.prices.Current(ctx)
	if err != nil {
		return nil, err
	}
	order := e.newOrder(userID, e.quote(price, orderType, amount))
	if err := e.ledger.DB().WithContext(ctx).Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", dbutil.WrapError(err))
	}
	metrics.OrdersProcessed.WithLabelValues(string(orderType), string(order.Status)).Inc()
	return order, nil
}

// Settle settles a pending order at the active price. The quote stored by
// Submit is replaced, so the amount in IRR is the only part of the order that
// carries over.
func (e *Engine) Settle(ctx context.Context, userID uuid.UUID, orderNumber string) (*models.Order, error) {
	ctx, span := e.tracer.Start(ctx, "trading.Settle", trace.WithAttributes(attribute.String("order_number", orderNumber)))
	defer span.End()

	price, err := e.prices.Current(ctx)
	if err != nil {
		return nil, e.spanError(span, err)
	}

	start := time.Now()
	var (
		order     *models.Order
		settleErr error
	)
	_, err = e.ledger.WithWallet(ctx, userID, func(tx *gorm.DB, w *models.Wallet) error {
		o, err := lockOrder(tx, userID, orderNumber)
		if err != nil {
			return err
		}
		if o.Status != models.OrderStatusPending {
			return errors.InvalidStateTransition.Explain("order %s is %s", orderNumber, o.Status)
		}
		q := e.quote(price, o.OrderType, o.AmountIRR)
		o.GoldPricePerGram = q.GoldPricePerGram
		o.GoldAmount = q.GoldAmount
		o.Fee = q.Fee
		o.TotalAmount = q.TotalAmount
		order = o
		settleErr = e.settle(tx, w, o)
		if settleErr != nil && !errors.Is(settleErr, errors.InsufficientFunds) {
			return settleErr
		}
		return nil
	})
	if err != nil {
		return nil, e.spanError(span, err)
	}

	e.afterSettle(ctx, order, time.Since(start))
	if settleErr != nil {
		return order, e.spanError(span, settleErr)
	}
	return order, nil
}

// settle moves a pending order through processing to completed or failed.
// It runs under the wallet row lock held by tx.
func (e *Engine) settle(tx *gorm.DB, w *models.Wallet, order *models.Order) error {
	if err := transition(order, models.OrderStatusProcessing); err != nil {
		return err
	}

	var (
		cash, gold  decimal.Decimal
		shortfall   *errors.Error
		txType      models.TransactionType
		description string
	)
	switch order.OrderType {
	case models.OrderTypeBuy:
		cash, gold = order.TotalAmount, order.GoldAmount
		txType = models.TransactionTypeBuyGold
		description = fmt.Sprintf("buy %s g gold", order.GoldAmount.StringFixed(models.GoldPlaces))
		if w.AvailableIRR().LessThan(cash) {
			shortfall = errors.InsufficientFunds.Explain("insufficient IRR balance: available %s, required %s", w.AvailableIRR(), cash)
		}
	case models.OrderTypeSell:
		cash, gold = order.TotalAmount, order.GoldAmount
		txType = models.TransactionTypeSellGold
		description = fmt.Sprintf("sell %s g gold", order.GoldAmount.StringFixed(models.GoldPlaces))
		if w.AvailableGold().LessThan(gold) {
			shortfall = errors.InsufficientFunds.Explain("insufficient gold balance: available %s, required %s", w.AvailableGold(), gold)
		}
	default:
		return errors.Invalid.Explain("unknown order type %q", order.OrderType)
	}

	if shortfall != nil {
		if err := transition(order, models.OrderStatusFailed); err != nil {
			return err
		}
		order.FailureReason = shortfall.Message
		if err := saveOrder(tx, order); err != nil {
			return err
		}
		return shortfall
	}

	var err error
	if order.OrderType == models.OrderTypeBuy {
		if err = e.ledger.Deduct(tx, w, cash, decimal.Zero); err == nil {
			err = e.ledger.Add(tx, w, decimal.Zero, gold)
		}
	} else {
		if err = e.ledger.Deduct(tx, w, decimal.Zero, gold); err == nil {
			err = e.ledger.Add(tx, w, cash, decimal.Zero)
		}
	}
	if err != nil {
		return err
	}

	if err := e.ledger.Record(tx, w, &models.WalletTransaction{
		TransactionType: txType,
		Status:          models.TransactionStatusCompleted,
		AmountIRR:       cash,
		AmountGold:      gold,
		Description:     description,
		ReferenceID:     order.OrderNumber,
	}); err != nil {
		return err
	}

	if err := transition(order, models.OrderStatusCompleted); err != nil {
		return err
	}
	executed := e.now()
	order.ExecutedAt = &executed
	return saveOrder(tx, order)
}

func (e *Engine) afterSettle(ctx context.Context, order *models.Order, elapsed time.Duration) {
	metrics.OrdersProcessed.WithLabelValues(string(order.OrderType), string(order.Status)).Inc()
	metrics.SettlementLatency.Observe(elapsed.Seconds())
	if e.settled != nil {
		e.settled.Add(ctx, 1, metric.WithAttributes(
			attribute.String("order_type", string(order.OrderType)),
			attribute.String("status", string(order.Status)),
		))
	}

	eventType := events.OrderCompleted
	if order.Status == models.OrderStatusFailed {
		eventType = events.OrderFailed
	}
	userID := order.UserID
	e.events.Emit(ctx, eventType, &userID, order.OrderNumber, map[string]interface{}{
		"order_type":   string(order.OrderType),
		"gold_amount":  order.GoldAmount.String(),
		"total_amount": order.TotalAmount.String(),
		"fee":          order.Fee.String(),
	})

	e.logger.Info("order settled",
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", order.UserID.String()),
		zap.String("order_type", string(order.OrderType)),
		zap.String("status", string(order.Status)),
		zap.Duration("elapsed", elapsed),
	)
}

// Cancel cancels a pending order. Pending orders hold no funds, so the
// ledger is not touched.
func (e *Engine) Cancel(ctx context.Context, userID uuid.UUID, orderNumber string) (*models.Order, error) {
	var order *models.Order
	err := e.ledger.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(tx, userID, orderNumber)
		if err != nil {
			return err
		}
		if err := transition(o, models.OrderStatusCancelled); err != nil {
			return err
		}
		cancelled := e.now()
		o.CancelledAt = &cancelled
		order = o
		return saveOrder(tx, o)
	})
	if err != nil {
		return nil, dbutil.WrapError(err)
	}

	metrics.OrdersProcessed.WithLabelValues(string(order.OrderType), string(order.Status)).Inc()
	e.events.Emit(ctx, events.OrderCancelled, &userID, order.OrderNumber, nil)
	return order, nil
}

// Get returns one of the user's orders.
func (e *Engine) Get(ctx context.Context, userID uuid.UUID, orderNumber string) (*models.Order, error) {
	order, err := dbutil.FindOne[models.Order](e.ledger.DB().WithContext(ctx).
		Where("user_id = ? AND order_number = ?", userID, orderNumber))
	if errors.Is(err, errors.NotFound) {
		return nil, errors.NotFound.Explain("order %s not found", orderNumber)
	}
	return order, err
}

// OrderFilter narrows List.
type OrderFilter struct {
	Type   models.OrderType
	Status models.OrderStatus
	Page   dbutil.Page
}

// List returns the user's orders, newest first, and the number of matches.
func (e *Engine) List(ctx context.Context, userID uuid.UUID, filter OrderFilter) ([]models.Order, int64, error) {
	query := e.ledger.DB().WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if filter.Type != "" {
		if !filter.Type.Valid() {
			return nil, 0, errors.Invalid.Explain("unknown order type %q", filter.Type)
		}
		query = query.Where("order_type = ?", filter.Type)
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, 0, errors.Invalid.Explain("unknown order status %q", filter.Status)
		}
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	var orders []models.Order
	if err := filter.Page.Apply(query.Order("created_at DESC")).Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

func lockOrder(tx *gorm.DB, userID uuid.UUID, orderNumber string) (*models.Order, error) {
	var o models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND order_number = ?", userID, orderNumber).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound.Explain("order %s not found", orderNumber)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &o, nil
}

func transition(o *models.Order, next models.OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return errors.InvalidStateTransition.Explain("order %s cannot move from %s to %s", o.OrderNumber, o.Status, next)
	}
	o.Status = next
	return nil
}

func saveOrder(tx *gorm.DB, o *models.Order) error {
	o.UpdatedAt = time.Now().UTC()
	if err := tx.Save(o).Error; err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (e *Engine) spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
