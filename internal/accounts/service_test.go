package accounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/internal/ledger"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/models"
	"github.com/Aidin1998/talabin/testutil"
)

func setup(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	log := zap.NewNop()
	return NewService(log, ledger.NewService(log, db, nil)), db
}

func TestRegisterCreatesWallet(t *testing.T) {
	svc, db := setup(t)

	user, err := svc.Register(context.Background(), "0912 123 4567", "Sara", "<b>Ahmadi</b>")
	require.NoError(t, err)
	assert.Equal(t, "+989121234567", user.PhoneNumber)
	assert.Equal(t, "Sara", user.FirstName)
	assert.Equal(t, "Ahmadi", user.LastName)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsStaff)

	w := testutil.LoadWallet(t, db, user.ID)
	testutil.RequireDecimal(t, "0", w.BalanceIRR)
	testutil.RequireDecimal(t, "0", w.GoldBalance)
}

func TestRegisterNormalizesPhoneForms(t *testing.T) {
	svc, _ := setup(t)

	_, err := svc.Register(context.Background(), "+989121234567", "", "")
	require.NoError(t, err)

	for _, phone := range []string{"09121234567", "989121234567", "9121234567"} {
		_, err := svc.Register(context.Background(), phone, "", "")
		require.Error(t, err, phone)
		assert.True(t, errors.Is(err, errors.Conflict), phone)
	}

	found, err := svc.GetByPhone(context.Background(), "0912-123-4567")
	require.NoError(t, err)
	assert.Equal(t, "+989121234567", found.PhoneNumber)
}

func TestRegisterRejectsBadPhone(t *testing.T) {
	svc, db := setup(t)

	for _, phone := range []string{"", "12345", "+14155552671", "0812123456"} {
		_, err := svc.Register(context.Background(), phone, "", "")
		require.Error(t, err, phone)
		assert.True(t, errors.Is(err, errors.Invalid), phone)
	}

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetAndSetStaff(t *testing.T) {
	svc, _ := setup(t)
	user, err := svc.Register(context.Background(), "09121234567", "Ali", "Rezaei")
	require.NoError(t, err)

	isStaff, err := svc.IsStaff(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, isStaff)

	staff, err := svc.SetStaff(context.Background(), user.ID, true)
	require.NoError(t, err)
	assert.True(t, staff.IsStaff)
	isStaff, err = svc.IsStaff(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, isStaff)

	staff, err = svc.SetStaff(context.Background(), user.ID, false)
	require.NoError(t, err)
	assert.False(t, staff.IsStaff)
	isStaff, err = svc.IsStaff(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, isStaff)

	isStaff, err = svc.IsStaff(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, isStaff)

	_, err = svc.SetStaff(context.Background(), uuid.New(), true)
	assert.True(t, errors.Is(err, errors.NotFound))

	_, err = svc.Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, errors.NotFound))

	_, err = svc.GetByPhone(context.Background(), "09350000000")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := setup(t)
	user, err := svc.Register(context.Background(), "09121234567", "Ali", "Rezaei")
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(context.Background(), user.ID, "Reza", "Karimi")
	require.NoError(t, err)
	assert.Equal(t, "Reza", updated.FirstName)

	loaded, err := svc.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Karimi", loaded.LastName)
	assert.Equal(t, user.PhoneNumber, loaded.PhoneNumber)
}
