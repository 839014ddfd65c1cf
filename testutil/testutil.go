// Package testutil holds fixtures shared by the DB-backed package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/internal/database"
	"github.com/Aidin1998/talabin/pkg/models"
)

// NewTestDB opens a private in-memory SQLite database with the full schema.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.NewSQLiteDB("file:"+uuid.NewString()+"?mode=memory&cache=shared", nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user with an empty wallet.
func CreateUser(t testing.TB, db *gorm.DB, phone string) *models.User {
	t.Helper()
	user := &models.User{PhoneNumber: phone, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.Wallet{UserID: user.ID}).Error)
	return user
}

// Fund sets the raw balances of a user's wallet.
func Fund(t testing.TB, db *gorm.DB, userID uuid.UUID, cash, gold string) {
	t.Helper()
	require.NoError(t, db.Model(&models.Wallet{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
		"balance_irr":  decimal.RequireFromString(cash),
		"gold_balance": decimal.RequireFromString(gold),
	}).Error)
}

// LoadWallet reads a user's wallet straight from the database.
func LoadWallet(t testing.TB, db *gorm.DB, userID uuid.UUID) *models.Wallet {
	t.Helper()
	var w models.Wallet
	require.NoError(t, db.Where("user_id = ?", userID).First(&w).Error)
	return &w
}

// SetPrice inserts an active gold price row.
func SetPrice(t testing.TB, db *gorm.DB, buy, sell string) *models.GoldPrice {
	t.Helper()
	require.NoError(t, db.Model(&models.GoldPrice{}).Where("is_active = ?", true).Update("is_active", false).Error)
	p := &models.GoldPrice{
		BuyPrice:  decimal.RequireFromString(buy),
		SellPrice: decimal.RequireFromString(sell),
		IsActive:  true,
		Source:    "test",
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// RequireDecimal asserts that two decimals are numerically equal.
func RequireDecimal(t testing.TB, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}
