package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InstallmentPlan is an admin-managed template for installment purchases.
type InstallmentPlan struct {
	ID             uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Name           string          `json:"name" gorm:"size:200"`
	Description    string          `json:"description" gorm:"type:text"`
	DurationMonths int             `json:"duration_months"`
	InterestRate   decimal.Decimal `json:"interest_rate" gorm:"type:decimal(5,2);not null"`
	MinAmount      decimal.Decimal `json:"min_amount" gorm:"type:decimal(15,2);not null"`
	MaxAmount      decimal.Decimal `json:"max_amount" gorm:"type:decimal(15,2);not null"`
	IsActive       bool            `json:"is_active" gorm:"default:true"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p *InstallmentPlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Installment is a user's subscription to a plan. TotalAmount includes
// interest.
type Installment struct {
	ID             uuid.UUID            `json:"id" gorm:"primaryKey;type:uuid"`
	UserID         uuid.UUID            `json:"user_id" gorm:"type:uuid;index"`
	PlanID         uuid.UUID            `json:"plan_id" gorm:"type:uuid;index"`
	Plan           *InstallmentPlan     `json:"plan,omitempty" gorm:"foreignKey:PlanID;constraint:OnDelete:RESTRICT"`
	TotalAmount    decimal.Decimal      `json:"total_amount" gorm:"type:decimal(15,2);not null"`
	MonthlyPayment decimal.Decimal      `json:"monthly_payment" gorm:"type:decimal(15,2);not null"`
	Status         InstallmentStatus    `json:"status" gorm:"size:20;index"`
	StartDate      time.Time            `json:"start_date" gorm:"type:date"`
	EndDate        time.Time            `json:"end_date" gorm:"type:date"`
	Payments       []InstallmentPayment `json:"payments,omitempty" gorm:"foreignKey:InstallmentID"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func (i *Installment) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// InstallmentPayment is one scheduled monthly obligation.
type InstallmentPayment struct {
	ID            uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	InstallmentID uuid.UUID       `json:"installment_id" gorm:"type:uuid;uniqueIndex:idx_installment_payment_number"`
	PaymentNumber int             `json:"payment_number" gorm:"uniqueIndex:idx_installment_payment_number"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null"`
	DueDate       time.Time       `json:"due_date" gorm:"type:date"`
	PaidDate      *time.Time      `json:"paid_date,omitempty" gorm:"type:date"`
	Status        PaymentStatus   `json:"status" gorm:"size:20;index"`
	TransactionID string          `json:"transaction_id,omitempty" gorm:"size:100"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p *InstallmentPayment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// AddMonths adds n calendar months to t, clamping the day to the last day of
// the resulting month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
