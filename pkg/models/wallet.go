package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/pkg/errors"
)

// Wallet holds a user's cash (IRR) and gold (grams) balances. Frozen amounts
// are reserved by pending operations and are part of the raw balances.
type Wallet struct {
	ID                uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID            uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex"`
	BalanceIRR        decimal.Decimal `json:"balance_irr" gorm:"type:decimal(15,2);not null;default:0"`
	GoldBalance       decimal.Decimal `json:"gold_balance" gorm:"type:decimal(12,4);not null;default:0"`
	FrozenBalanceIRR  decimal.Decimal `json:"frozen_balance_irr" gorm:"type:decimal(15,2);not null;default:0"`
	FrozenGoldBalance decimal.Decimal `json:"frozen_gold_balance" gorm:"type:decimal(12,4);not null;default:0"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// AvailableIRR is the cash not reserved by pending operations.
func (w *Wallet) AvailableIRR() decimal.Decimal {
	return w.BalanceIRR.Sub(w.FrozenBalanceIRR)
}

// AvailableGold is the gold not reserved by pending operations.
func (w *Wallet) AvailableGold() decimal.Decimal {
	return w.GoldBalance.Sub(w.FrozenGoldBalance)
}

func checkDeltas(cash, gold decimal.Decimal) error {
	if cash.IsNegative() || gold.IsNegative() {
		return errors.InvalidAmount.Explain("ledger amounts must not be negative")
	}
	return nil
}

// Freeze reserves cash and gold out of the available balances.
func (w *Wallet) Freeze(cash, gold decimal.Decimal) error {
	if err := checkDeltas(cash, gold); err != nil {
		return err
	}
	if cash.GreaterThan(w.AvailableIRR()) {
		return errors.InsufficientFunds.Explain("insufficient IRR balance: available %s, required %s", w.AvailableIRR(), cash)
	}
	if gold.GreaterThan(w.AvailableGold()) {
		return errors.InsufficientFunds.Explain("insufficient gold balance: available %s, required %s", w.AvailableGold(), gold)
	}
	w.FrozenBalanceIRR = w.FrozenBalanceIRR.Add(cash)
	w.FrozenGoldBalance = w.FrozenGoldBalance.Add(gold)
	return nil
}

// Unfreeze releases reserved amounts. Frozen balances never drop below zero.
func (w *Wallet) Unfreeze(cash, gold decimal.Decimal) error {
	if err := checkDeltas(cash, gold); err != nil {
		return err
	}
	w.FrozenBalanceIRR = decimal.Max(decimal.Zero, w.FrozenBalanceIRR.Sub(cash))
	w.FrozenGoldBalance = decimal.Max(decimal.Zero, w.FrozenGoldBalance.Sub(gold))
	return nil
}

// Add credits the raw balances.
func (w *Wallet) Add(cash, gold decimal.Decimal) error {
	if err := checkDeltas(cash, gold); err != nil {
		return err
	}
	w.BalanceIRR = w.BalanceIRR.Add(cash)
	w.GoldBalance = w.GoldBalance.Add(gold)
	return nil
}

// Deduct debits the raw balances. Callers that must respect reservations
// check the available balance before calling it.
func (w *Wallet) Deduct(cash, gold decimal.Decimal) error {
	if err := checkDeltas(cash, gold); err != nil {
		return err
	}
	if cash.GreaterThan(w.BalanceIRR) {
		return errors.InsufficientFunds.Explain("insufficient IRR balance: balance %s, required %s", w.BalanceIRR, cash)
	}
	if gold.GreaterThan(w.GoldBalance) {
		return errors.InsufficientFunds.Explain("insufficient gold balance: balance %s, required %s", w.GoldBalance, gold)
	}
	w.BalanceIRR = w.BalanceIRR.Sub(cash)
	w.GoldBalance = w.GoldBalance.Sub(gold)
	return nil
}

// WalletTransaction is the audit record of one ledger-affecting operation.
type WalletTransaction struct {
	ID              uuid.UUID         `json:"id" gorm:"primaryKey;type:uuid"`
	WalletID        uuid.UUID         `json:"wallet_id" gorm:"type:uuid;index"`
	TransactionType TransactionType   `json:"transaction_type" gorm:"size:20;index"`
	Status          TransactionStatus `json:"status" gorm:"size:20;default:pending"`
	AmountIRR       decimal.Decimal   `json:"amount_irr" gorm:"type:decimal(15,2);not null;default:0"`
	AmountGold      decimal.Decimal   `json:"amount_gold" gorm:"type:decimal(12,4);not null;default:0"`
	Description     string            `json:"description" gorm:"type:text"`
	ReferenceID     string            `json:"reference_id,omitempty" gorm:"size:100;index"`
	CreatedAt       time.Time         `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
