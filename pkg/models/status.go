package models

// transitions maps a status to the statuses it may move to. Terminal
// statuses map to an empty slice.
type transitions[S ~string] map[S][]S

func (t transitions[S]) allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (t transitions[S]) terminal(s S) bool {
	next, ok := t[s]
	return ok && len(next) == 0
}

func (t transitions[S]) known(s S) bool {
	_, ok := t[s]
	return ok
}

// OrderType is the side of a gold order.
type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeBuy || t == OrderTypeSell
}

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = transitions[OrderStatus]{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusFailed},
	OrderStatusCompleted:  {},
	OrderStatusFailed:     {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) Valid() bool                           { return orderTransitions.known(s) }
func (s OrderStatus) IsTerminal() bool                      { return orderTransitions.terminal(s) }
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool { return orderTransitions.allows(s, next) }

// TransactionType classifies a wallet transaction.
type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "deposit"
	TransactionTypeWithdraw    TransactionType = "withdraw"
	TransactionTypeBuyGold     TransactionType = "buy_gold"
	TransactionTypeSellGold    TransactionType = "sell_gold"
	TransactionTypeFee         TransactionType = "fee"
	TransactionTypeRefund      TransactionType = "refund"
	TransactionTypeInstallment TransactionType = "installment"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeBuyGold, TransactionTypeSellGold,
		TransactionTypeFee, TransactionTypeRefund, TransactionTypeInstallment:
		return true
	}
	return false
}

// TransactionStatus is the status of a wallet transaction record.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
)

var transactionTransitions = transitions[TransactionStatus]{
	TransactionStatusPending:    {TransactionStatusProcessing, TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusProcessing: {TransactionStatusCompleted, TransactionStatusFailed},
	TransactionStatusCompleted:  {},
	TransactionStatusFailed:     {},
	TransactionStatusCancelled:  {},
}

func (s TransactionStatus) Valid() bool { return transactionTransitions.known(s) }
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return transactionTransitions.allows(s, next)
}

// DepositStatus is the lifecycle status of a deposit request.
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusPaid      DepositStatus = "paid"
	DepositStatusVerified  DepositStatus = "verified"
	DepositStatusRejected  DepositStatus = "rejected"
	DepositStatusCancelled DepositStatus = "cancelled"
)

var depositTransitions = transitions[DepositStatus]{
	DepositStatusPending:   {DepositStatusPaid, DepositStatusRejected, DepositStatusCancelled},
	DepositStatusPaid:      {DepositStatusVerified, DepositStatusRejected},
	DepositStatusVerified:  {},
	DepositStatusRejected:  {},
	DepositStatusCancelled: {},
}

func (s DepositStatus) Valid() bool                             { return depositTransitions.known(s) }
func (s DepositStatus) CanTransitionTo(next DepositStatus) bool { return depositTransitions.allows(s, next) }

// PaymentMethod is how the user pays a deposit.
type PaymentMethod string

const (
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodCardToCard   PaymentMethod = "card_to_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodOnline || m == PaymentMethodCardToCard || m == PaymentMethodBankTransfer
}

// WithdrawalStatus is the lifecycle status of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusApproved   WithdrawalStatus = "approved"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"
)

var withdrawalTransitions = transitions[WithdrawalStatus]{
	WithdrawalStatusPending:    {WithdrawalStatusApproved, WithdrawalStatusRejected, WithdrawalStatusCancelled},
	WithdrawalStatusApproved:   {WithdrawalStatusProcessing, WithdrawalStatusCompleted, WithdrawalStatusRejected, WithdrawalStatusCancelled},
	WithdrawalStatusProcessing: {WithdrawalStatusCompleted},
	WithdrawalStatusCompleted:  {},
	WithdrawalStatusRejected:   {},
	WithdrawalStatusCancelled:  {},
}

func (s WithdrawalStatus) Valid() bool { return withdrawalTransitions.known(s) }
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	return withdrawalTransitions.allows(s, next)
}

// InstallmentStatus is the status of an installment subscription.
type InstallmentStatus string

const (
	InstallmentStatusActive    InstallmentStatus = "active"
	InstallmentStatusCompleted InstallmentStatus = "completed"
	InstallmentStatusDefaulted InstallmentStatus = "defaulted"
	InstallmentStatusCancelled InstallmentStatus = "cancelled"
)

var installmentTransitions = transitions[InstallmentStatus]{
	InstallmentStatusActive:    {InstallmentStatusCompleted, InstallmentStatusDefaulted, InstallmentStatusCancelled},
	InstallmentStatusCompleted: {},
	InstallmentStatusDefaulted: {},
	InstallmentStatusCancelled: {},
}

func (s InstallmentStatus) Valid() bool { return installmentTransitions.known(s) }
func (s InstallmentStatus) CanTransitionTo(next InstallmentStatus) bool {
	return installmentTransitions.allows(s, next)
}

// PaymentStatus is the status of one scheduled installment payment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusOverdue PaymentStatus = "overdue"
)

var paymentTransitions = transitions[PaymentStatus]{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusOverdue},
	PaymentStatusOverdue: {PaymentStatusPaid},
	PaymentStatusPaid:    {},
}

func (s PaymentStatus) Valid() bool                             { return paymentTransitions.known(s) }
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool { return paymentTransitions.allows(s, next) }
