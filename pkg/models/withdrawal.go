package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BankAccount is a user's destination account for withdrawals.
type BankAccount struct {
	ID                uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID            uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	BankName          string    `json:"bank_name" gorm:"size:100"`
	AccountNumber     string    `json:"account_number" gorm:"size:50"`
	ShebaNumber       string    `json:"sheba_number" gorm:"size:26"`
	CardNumber        string    `json:"card_number" gorm:"size:16"`
	AccountHolderName string    `json:"account_holder_name" gorm:"size:200"`
	IsVerified        bool      `json:"is_verified" gorm:"default:false"`
	IsDefault         bool      `json:"is_default" gorm:"default:false"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (b *BankAccount) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// DepositRequest tracks cash entering the ledger. Funds are credited only
// when the request is verified.
type DepositRequest struct {
	ID               uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID           uuid.UUID       `json:"user_id" gorm:"type:uuid;index"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null"`
	Status           DepositStatus   `json:"status" gorm:"size:20;index"`
	PaymentMethod    PaymentMethod   `json:"payment_method" gorm:"size:50"`
	TransactionID    string          `json:"transaction_id" gorm:"size:100;uniqueIndex"`
	GatewayReference string          `json:"gateway_reference,omitempty" gorm:"size:200"`
	ReceiptRef       string          `json:"receipt_ref,omitempty" gorm:"size:255"`
	Notes            string          `json:"notes,omitempty" gorm:"type:text"`
	VerifiedAt       *time.Time      `json:"verified_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (d *DepositRequest) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// WithdrawalRequest tracks cash leaving the ledger. The amount stays frozen
// in the wallet until the request completes or is cancelled.
type WithdrawalRequest struct {
	ID              uuid.UUID        `json:"id" gorm:"primaryKey;type:uuid"`
	UserID          uuid.UUID        `json:"user_id" gorm:"type:uuid;index"`
	BankAccountID   *uuid.UUID       `json:"bank_account_id" gorm:"type:uuid"`
	BankAccount     *BankAccount     `json:"bank_account,omitempty" gorm:"foreignKey:BankAccountID;constraint:OnDelete:SET NULL"`
	Amount          decimal.Decimal  `json:"amount" gorm:"type:decimal(15,2);not null"`
	Fee             decimal.Decimal  `json:"fee" gorm:"type:decimal(15,2);not null;default:0"`
	Status          WithdrawalStatus `json:"status" gorm:"size:20;index"`
	TransactionID   string           `json:"transaction_id" gorm:"size:100;uniqueIndex"`
	TrackingCode    string           `json:"tracking_code,omitempty" gorm:"size:100"`
	RejectionReason string           `json:"rejection_reason,omitempty" gorm:"type:text"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (w *WithdrawalRequest) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
