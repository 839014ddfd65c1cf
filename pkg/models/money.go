package models

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Storage precision of the ledger columns.
const (
	CashPlaces int32 = 2
	GoldPlaces int32 = 4
)

// RoundCash rounds an IRR amount to the stored cash precision.
func RoundCash(d decimal.Decimal) decimal.Decimal { return d.Round(CashPlaces) }

// RoundGold rounds a gram amount to the stored gold precision.
func RoundGold(d decimal.Decimal) decimal.Decimal { return d.Round(GoldPlaces) }

// PercentOf returns amount * rate / 100 rounded to cash precision.
func PercentOf(amount, rate decimal.Decimal) decimal.Decimal {
	return RoundCash(amount.Mul(rate).Div(decimal.NewFromInt(100)))
}

const transactionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewTransactionID returns "TXN" + YYYYmmddHHMMSS + 6 random [A-Z0-9].
// It is used for order numbers, deposit/withdrawal transaction ids and
// installment payment references.
func NewTransactionID(now time.Time) string {
	var b strings.Builder
	b.Grow(23)
	b.WriteString("TXN")
	b.WriteString(now.Format("20060102150405"))
	max := big.NewInt(int64(len(transactionIDAlphabet)))
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b.WriteByte(transactionIDAlphabet[n.Int64()])
	}
	return b.String()
}

// NewTrackingCode returns a sortable opaque code for bank transfers.
func NewTrackingCode(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
