package trading

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/common/dbutil"
	"github.com/Aidin1998/talabin/internal/events"
	"github.com/Aidin1998/talabin/internal/ledger"
	"github.com/Aidin1998/talabin/internal/pricing"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/models"
	"github.com/Aidin1998/talabin/testutil"
)

type fixture struct {
	db       *gorm.DB
	engine   *Engine
	oracle   *pricing.Oracle
	user     *models.User
	recorder *events.Recorder
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T, cash, gold string) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "+989121234567")
	testutil.Fund(t, db, user.ID, cash, gold)
	testutil.SetPrice(t, db, "2950000", "3050000")

	rec := &events.Recorder{}
	log := zap.NewNop()
	oracle := pricing.NewOracle(log, db, pricing.Options{})
	engine := NewEngine(log, ledger.NewService(log, db, nil), oracle, events.NewPublisher(log, rec), DefaultConfig())
	return &fixture{db: db, engine: engine, oracle: oracle, user: user, recorder: rec}
}

func TestPlaceBuyCompletes(t *testing.T) {
	f := setup(t, "5000000", "0")

	order, err := f.engine.Place(context.Background(), f.user.ID, models.OrderTypeBuy, d("1000000"))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.NotNil(t, order.ExecutedAt)
	testutil.RequireDecimal(t, "0.3279", order.GoldAmount)
	testutil.RequireDecimal(t, "5000", order.Fee)
	testutil.RequireDecimal(t, "1005000", order.TotalAmount)
	testutil.RequireDecimal(t, "3050000", order.GoldPricePerGram)

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "3995000", w.BalanceIRR)
	testutil.RequireDecimal(t, "0.3279", w.GoldBalance)

	var entries []models.WalletTransaction
	require.NoError(t, f.db.Where("reference_id = ?", order.OrderNumber).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TransactionTypeBuyGold, entries[0].TransactionType)
	assert.Equal(t, models.TransactionStatusCompleted, entries[0].Status)
	testutil.RequireDecimal(t, "1005000", entries[0].AmountIRR)

	assert.Equal(t, []string{events.OrderCompleted}, f.recorder.Types())
}

func TestPlaceBuyInsufficientFunds(t *testing.T) {
	f := setup(t, "10000", "0")

	order, err := f.engine.Place(context.Background(), f.user.ID, models.OrderTypeBuy, d("1000000"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.InsufficientFunds))
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusFailed, order.Status)

	stored, err := f.engine.Get(context.Background(), f.user.ID, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.FailureReason)

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "10000", w.BalanceIRR)
	testutil.RequireDecimal(t, "0", w.GoldBalance)

	var count int64
	require.NoError(t, f.db.Model(&models.WalletTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, []string{events.OrderFailed}, f.recorder.Types())
}

func TestPlaceRespectsFrozenFunds(t *testing.T) {
	f := setup(t, "1100000", "0")
	require.NoError(t, f.db.Model(&models.Wallet{}).Where("user_id = ?", f.user.ID).
		Update("frozen_balance_irr", d("200000")).Error)

	_, err := f.engine.Place(context.Background(), f.user.ID, models.OrderTypeBuy, d("1000000"))
	assert.True(t, errors.Is(err, errors.InsufficientFunds))
}

func TestPlaceSell(t *testing.T) {
	f := setup(t, "0", "1")

	order, err := f.engine.Place(context.Background(), f.user.ID, models.OrderTypeSell, d("1000000"))
	require.NoError(t, err)

	// sells are priced at the buy price and pay out amount minus fee
	testutil.RequireDecimal(t, "2950000", order.GoldPricePerGram)
	testutil.RequireDecimal(t, "0.339", order.GoldAmount)
	testutil.RequireDecimal(t, "995000", order.TotalAmount)

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "995000", w.BalanceIRR)
	testutil.RequireDecimal(t, "0.661", w.GoldBalance)
}

func TestPlaceSellInsufficientGold(t *testing.T) {
	f := setup(t, "0", "0.1")
	order, err := f.engine.Place(context.Background(), f.user.ID, models.OrderTypeSell, d("1000000"))
	assert.True(t, errors.Is(err, errors.InsufficientFunds))
	assert.Equal(t, models.OrderStatusFailed, order.Status)
}

func TestPlaceValidatesAmount(t *testing.T) {
	f := setup(t, "5000000", "0")
	ctx := context.Background()

	for _, amount := range []string{"0", "-1000", "99000", "100500"} {
		_, err := f.engine.Place(ctx, f.user.ID, models.OrderTypeBuy, d(amount))
		assert.Truef(t, errors.Is(err, errors.InvalidAmount), "amount %s", amount)
	}
	_, err := f.engine.Place(ctx, f.user.ID, "swap", d("100000"))
	assert.True(t, errors.Is(err, errors.Invalid))

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceWithoutPrice(t *testing.T) {
	f := setup(t, "5000000", "0")
	require.NoError(t, f.db.Model(&models.GoldPrice{}).Where("1 = 1").Update("is_active", false).Error)

	log := zap.NewNop()
	engine := NewEngine(log, ledger.NewService(log, f.db, nil), pricing.NewOracle(log, f.db, pricing.Options{}), nil, DefaultConfig())
	_, err := engine.Place(context.Background(), f.user.ID, models.OrderTypeBuy, d("1000000"))
	assert.True(t, errors.Is(err, errors.PriceUnavailable))
	_, err = engine.Preview(context.Background(), models.OrderTypeBuy, d("1000000"))
	assert.True(t, errors.Is(err, errors.PriceUnavailable))
}

func TestPreviewMatchesPlace(t *testing.T) {
	f := setup(t, "5000000", "0")
	ctx := context.Background()

	q, err := f.engine.Preview(ctx, models.OrderTypeBuy, d("1234000"))
	require.NoError(t, err)
	order, err := f.engine.Place(ctx, f.user.ID, models.OrderTypeBuy, d("1234000"))
	require.NoError(t, err)

	assert.True(t, q.GoldAmount.Equal(order.GoldAmount))
	assert.True(t, q.Fee.Equal(order.Fee))
	assert.True(t, q.TotalAmount.Equal(order.TotalAmount))

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "preview must not persist anything")
}

func TestConcurrentPlaceSingleWinner(t *testing.T) {
	f := setup(t, "1005000", "0")

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Place(context.Background(), f.user.ID, models.OrderTypeBuy, d("1000000"))
			if err != nil {
				assert.True(t, errors.Is(err, errors.InsufficientFunds))
			}
		}()
	}
	wg.Wait()

	var completed, failed int64
	require.NoError(t, f.db.Model(&models.Order{}).Where("status = ?", models.OrderStatusCompleted).Count(&completed).Error)
	require.NoError(t, f.db.Model(&models.Order{}).Where("status = ?", models.OrderStatusFailed).Count(&failed).Error)
	assert.Equal(t, int64(1), completed)
	assert.Equal(t, int64(n-1), failed)

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "0", w.BalanceIRR)
	testutil.RequireDecimal(t, "0.3279", w.GoldBalance)
}

func TestSubmitSettleAndCancel(t *testing.T) {
	f := setup(t, "5000000", "0")
	ctx := context.Background()

	pending, err := f.engine.Submit(ctx, f.user.ID, models.OrderTypeBuy, d("1000000"))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, pending.Status)
	testutil.RequireDecimal(t, "5000000", testutil.LoadWallet(t, f.db, f.user.ID).BalanceIRR)

	settled, err := f.engine.Settle(ctx, f.user.ID, pending.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, settled.Status)
	testutil.RequireDecimal(t, "3995000", testutil.LoadWallet(t, f.db, f.user.ID).BalanceIRR)

	_, err = f.engine.Settle(ctx, f.user.ID, pending.OrderNumber)
	assert.True(t, errors.Is(err, errors.InvalidStateTransition))
	_, err = f.engine.Cancel(ctx, f.user.ID, pending.OrderNumber)
	assert.True(t, errors.Is(err, errors.InvalidStateTransition))

	other, err := f.engine.Submit(ctx, f.user.ID, models.OrderTypeBuy, d("200000"))
	require.NoError(t, err)
	cancelled, err := f.engine.Cancel(ctx, f.user.ID, other.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	testutil.RequireDecimal(t, "3995000", testutil.LoadWallet(t, f.db, f.user.ID).BalanceIRR)

	_, err = f.engine.Settle(ctx, f.user.ID, other.OrderNumber)
	assert.True(t, errors.Is(err, errors.InvalidStateTransition))
}

func TestSettleRequotesAtActivePrice(t *testing.T) {
	f := setup(t, "5000000", "0")
	ctx := context.Background()

	pending, err := f.engine.Submit(ctx, f.user.ID, models.OrderTypeBuy, d("1000000"))
	require.NoError(t, err)
	testutil.RequireDecimal(t, "3050000", pending.GoldPricePerGram)
	testutil.RequireDecimal(t, "0.3279", pending.GoldAmount)

	_, err = f.oracle.Publish(ctx, d("5900000"), d("6100000"), "admin")
	require.NoError(t, err)

	settled, err := f.engine.Settle(ctx, f.user.ID, pending.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, settled.Status)
	testutil.RequireDecimal(t, "6100000", settled.GoldPricePerGram)
	testutil.RequireDecimal(t, "0.1639", settled.GoldAmount)
	testutil.RequireDecimal(t, "1005000", settled.TotalAmount)

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "0.1639", w.GoldBalance)
	testutil.RequireDecimal(t, "3995000", w.BalanceIRR)

	var stored models.Order
	require.NoError(t, f.db.Where("order_number = ?", pending.OrderNumber).First(&stored).Error)
	testutil.RequireDecimal(t, "6100000", stored.GoldPricePerGram)
	testutil.RequireDecimal(t, "0.1639", stored.GoldAmount)
}

func TestSettleWithoutPriceLeavesOrderPending(t *testing.T) {
	f := setup(t, "5000000", "0")
	ctx := context.Background()

	pending, err := f.engine.Submit(ctx, f.user.ID, models.OrderTypeBuy, d("1000000"))
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.GoldPrice{}).Where("is_active = ?", true).Update("is_active", false).Error)

	_, err = f.engine.Settle(ctx, f.user.ID, pending.OrderNumber)
	assert.True(t, errors.Is(err, errors.PriceUnavailable))

	order, err := f.engine.Get(ctx, f.user.ID, pending.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestOrdersAreScopedToOwner(t *testing.T) {
	f := setup(t, "5000000", "0")
	ctx := context.Background()

	order, err := f.engine.Submit(ctx, f.user.ID, models.OrderTypeBuy, d("100000"))
	require.NoError(t, err)

	stranger := uuid.New()
	_, err = f.engine.Get(ctx, stranger, order.OrderNumber)
	assert.True(t, errors.Is(err, errors.NotFound))
	_, err = f.engine.Cancel(ctx, stranger, order.OrderNumber)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestList(t *testing.T) {
	f := setup(t, "5000000", "1")
	ctx := context.Background()

	_, err := f.engine.Place(ctx, f.user.ID, models.OrderTypeBuy, d("100000"))
	require.NoError(t, err)
	_, err = f.engine.Place(ctx, f.user.ID, models.OrderTypeSell, d("100000"))
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, f.user.ID, models.OrderTypeBuy, d("100000"))
	require.NoError(t, err)

	all, total, err := f.engine.List(ctx, f.user.ID, OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	buys, total, err := f.engine.List(ctx, f.user.ID, OrderFilter{Type: models.OrderTypeBuy, Status: models.OrderStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, buys, 1)

	page, total, err := f.engine.List(ctx, f.user.ID, OrderFilter{Page: dbutil.Page{Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	_, _, err = f.engine.List(ctx, f.user.ID, OrderFilter{Status: "lost"})
	assert.True(t, errors.Is(err, errors.Invalid))
}
