package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User represents a platform user. Users are keyed by phone number.
type User struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	PhoneNumber string    `json:"phone_number" gorm:"size:20;uniqueIndex" validate:"required,e164"`
	FirstName   string    `json:"first_name" gorm:"size:100" validate:"max=100"`
	LastName    string    `json:"last_name" gorm:"size:100" validate:"max=100"`
	IsStaff     bool      `json:"is_staff" gorm:"default:false"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// GoldPrice is a published buy/sell price per gram. At most one row is active.
type GoldPrice struct {
	ID        uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	BuyPrice  decimal.Decimal `json:"buy_price" gorm:"type:decimal(15,2);not null"`
	SellPrice decimal.Decimal `json:"sell_price" gorm:"type:decimal(15,2);not null"`
	IsActive  bool            `json:"is_active" gorm:"index"`
	Source    string          `json:"source" gorm:"size:100"`
	CreatedAt time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (p *GoldPrice) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PriceHistory is an immutable point of the price time series.
type PriceHistory struct {
	ID        uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Timestamp time.Time       `json:"timestamp" gorm:"index"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(15,2);not null"`
	Source    string          `json:"source" gorm:"size:100"`
}

// TableName keeps the singular table name of the time series.
func (PriceHistory) TableName() string { return "price_history" }

func (p *PriceHistory) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Order is a buy or sell of gold against the active price.
type Order struct {
	ID               uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID           uuid.UUID       `json:"user_id" gorm:"type:uuid;index"`
	OrderNumber      string          `json:"order_number" gorm:"size:50;uniqueIndex"`
	OrderType        OrderType       `json:"order_type" gorm:"size:10"`
	Status           OrderStatus     `json:"status" gorm:"size:20;index"`
	GoldAmount       decimal.Decimal `json:"gold_amount" gorm:"type:decimal(12,4);not null"`
	GoldPricePerGram decimal.Decimal `json:"gold_price_per_gram" gorm:"type:decimal(15,2);not null"`
	AmountIRR        decimal.Decimal `json:"amount_irr" gorm:"type:decimal(15,2);not null"`
	Fee              decimal.Decimal `json:"fee" gorm:"type:decimal(15,2);not null;default:0"`
	TotalAmount      decimal.Decimal `json:"total_amount" gorm:"type:decimal(15,2);not null"`
	FailureReason    string          `json:"failure_reason,omitempty" gorm:"size:255"`
	CreatedAt        time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ExecutedAt       *time.Time      `json:"executed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Wallet{},
		&WalletTransaction{},
		&GoldPrice{},
		&PriceHistory{},
		&Order{},
		&BankAccount{},
		&DepositRequest{},
		&WithdrawalRequest{},
		&InstallmentPlan{},
		&Installment{},
		&InstallmentPayment{},
	}
}
