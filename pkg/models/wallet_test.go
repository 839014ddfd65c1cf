package models

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/talabin/pkg/errors"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertInvariant(t *testing.T, w *Wallet) {
	t.Helper()
	assert.False(t, w.FrozenBalanceIRR.IsNegative())
	assert.False(t, w.FrozenGoldBalance.IsNegative())
	assert.True(t, w.FrozenBalanceIRR.LessThanOrEqual(w.BalanceIRR))
	assert.True(t, w.FrozenGoldBalance.LessThanOrEqual(w.GoldBalance))
}

func TestWalletPrimitives(t *testing.T) {
	w := &Wallet{BalanceIRR: dec("1000"), GoldBalance: dec("2")}

	require.NoError(t, w.Freeze(dec("400"), dec("1.5")))
	assertInvariant(t, w)
	assert.True(t, w.AvailableIRR().Equal(dec("600")))
	assert.True(t, w.AvailableGold().Equal(dec("0.5")))

	err := w.Freeze(dec("601"), decimal.Zero)
	assert.True(t, errors.Is(err, errors.InsufficientFunds))
	err = w.Freeze(decimal.Zero, dec("0.5001"))
	assert.True(t, errors.Is(err, errors.InsufficientFunds))
	assert.True(t, w.FrozenBalanceIRR.Equal(dec("400")), "failed freeze must not change state")

	require.NoError(t, w.Unfreeze(dec("1000"), dec("0.5")))
	assert.True(t, w.FrozenBalanceIRR.IsZero())
	assert.True(t, w.FrozenGoldBalance.Equal(dec("1")))
	assertInvariant(t, w)

	require.NoError(t, w.Add(dec("500"), decimal.Zero))
	assert.True(t, w.BalanceIRR.Equal(dec("1500")))

	err = w.Deduct(dec("1500.01"), decimal.Zero)
	assert.True(t, errors.Is(err, errors.InsufficientFunds))
	require.NoError(t, w.Deduct(dec("1500"), dec("1")))
	assert.True(t, w.BalanceIRR.IsZero())
	assert.True(t, w.GoldBalance.Equal(dec("1")))

	for _, op := range []func(cash, gold decimal.Decimal) error{w.Freeze, w.Unfreeze, w.Add, w.Deduct} {
		assert.True(t, errors.Is(op(dec("-1"), decimal.Zero), errors.InvalidAmount))
		assert.True(t, errors.Is(op(decimal.Zero, dec("-0.1")), errors.InvalidAmount))
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusProcessing))
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusCancelled))
	assert.True(t, OrderStatusProcessing.CanTransitionTo(OrderStatusFailed))
	assert.False(t, OrderStatusProcessing.CanTransitionTo(OrderStatusCancelled))
	assert.False(t, OrderStatusCompleted.CanTransitionTo(OrderStatusPending))
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatus("bogus").Valid())

	assert.True(t, DepositStatusPaid.CanTransitionTo(DepositStatusVerified))
	assert.False(t, DepositStatusPending.CanTransitionTo(DepositStatusVerified))

	assert.True(t, WithdrawalStatusApproved.CanTransitionTo(WithdrawalStatusCompleted))
	assert.True(t, WithdrawalStatusApproved.CanTransitionTo(WithdrawalStatusCancelled))
	assert.False(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusCompleted))
	assert.False(t, WithdrawalStatusCompleted.CanTransitionTo(WithdrawalStatusCancelled))

	assert.True(t, PaymentStatusOverdue.CanTransitionTo(PaymentStatusPaid))
	assert.False(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusPending))

	assert.True(t, TransactionStatusPending.CanTransitionTo(TransactionStatusCancelled))
	assert.False(t, TransactionStatusCompleted.CanTransitionTo(TransactionStatusCancelled))
}

func TestRounding(t *testing.T) {
	assert.Equal(t, "0.3279", RoundGold(dec("1000000").Div(dec("3050000"))).String())
	assert.Equal(t, "5000", PercentOf(dec("1000000"), dec("0.5")).String())
	assert.Equal(t, "0.01", RoundCash(dec("0.005")).String())
}

func TestNewTransactionID(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	id := NewTransactionID(now)
	assert.Regexp(t, regexp.MustCompile(`^TXN20240305140709[A-Z0-9]{6}$`), id)
	assert.NotEqual(t, id, NewTransactionID(now))
	assert.Len(t, NewTrackingCode(now), 26)
}

func TestAddMonthsClampsDay(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), AddMonths(jan31, 1))
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), AddMonths(jan31, 3))
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), AddMonths(jan31, 12))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), AddMonths(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 2))
}
