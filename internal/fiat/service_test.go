package fiat

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/internal/events"
	"github.com/Aidin1998/talabin/internal/ledger"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/models"
	"github.com/Aidin1998/talabin/testutil"
)

const testSheba = "IR820540102680020817909002"

type sentSMS struct {
	phone  string
	kind   string
	amount decimal.Decimal
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentSMS
}

func (f *fakeNotifier) record(phone, kind string, amount decimal.Decimal) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentSMS{phone: phone, kind: kind, amount: amount})
	return true
}

func (f *fakeNotifier) SendOTP(_ context.Context, phone, _ string) bool {
	return f.record(phone, "otp", decimal.Zero)
}

func (f *fakeNotifier) SendNotification(_ context.Context, phone, _ string) bool {
	return f.record(phone, "notification", decimal.Zero)
}

func (f *fakeNotifier) SendWithdrawalApproved(_ context.Context, phone string, amount decimal.Decimal) bool {
	return f.record(phone, "withdrawal_approved", amount)
}

func (f *fakeNotifier) SendDepositApproved(_ context.Context, phone string, amount decimal.Decimal) bool {
	return f.record(phone, "deposit_approved", amount)
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	user     *models.User
	sms      *fakeNotifier
	recorder *events.Recorder
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "+989121234567")
	sms := &fakeNotifier{}
	rec := &events.Recorder{}
	log := zap.NewNop()
	svc := NewService(log, ledger.NewService(log, db, nil), DefaultConfig(), Options{
		Notifier: sms,
		Events:   events.NewPublisher(log, rec),
	})
	return &fixture{db: db, svc: svc, user: user, sms: sms, recorder: rec}
}

func (f *fixture) account(t *testing.T) *models.BankAccount {
	t.Helper()
	a, err := f.svc.AddBankAccount(context.Background(), f.user.ID, BankAccountInput{
		BankName:          "Mellat",
		ShebaNumber:       testSheba,
		AccountHolderName: "Ali Rezaei",
		IsDefault:         true,
	})
	require.NoError(t, err)
	return a
}

func TestBankAccountDefaultIsUnique(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := f.account(t)
	second, err := f.svc.AddBankAccount(ctx, f.user.ID, BankAccountInput{
		BankName:          "Saman",
		ShebaNumber:       "ir 1205 6000 0000 0000 0000 0001",
		CardNumber:        "6037991234567890",
		AccountHolderName: "<b>Ali</b> Rezaei",
		IsDefault:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, "IR120560000000000000000001", second.ShebaNumber)
	assert.Equal(t, "Ali Rezaei", second.AccountHolderName)

	accounts, err := f.svc.ListBankAccounts(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, second.ID, accounts[0].ID)
	assert.True(t, accounts[0].IsDefault)
	assert.False(t, accounts[1].IsDefault)

	updated, err := f.svc.UpdateBankAccount(ctx, f.user.ID, first.ID, BankAccountInput{
		BankName:          "Mellat",
		ShebaNumber:       testSheba,
		AccountHolderName: "Ali Rezaei",
		IsDefault:         true,
	})
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)

	var defaults int64
	require.NoError(t, f.db.Model(&models.BankAccount{}).Where("user_id = ? AND is_default = ?", f.user.ID, true).Count(&defaults).Error)
	assert.Equal(t, int64(1), defaults)
}

func TestBankAccountValidation(t *testing.T) {
	f := setup(t)
	_, err := f.svc.AddBankAccount(context.Background(), f.user.ID, BankAccountInput{
		BankName:          "Mellat",
		ShebaNumber:       "IR12",
		CardNumber:        "1234",
		AccountHolderName: "Ali",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Invalid))

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Len(t, e.Fields, 2)
}

func TestBankAccountOwnership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.account(t)
	stranger := uuid.New()

	_, err := f.svc.UpdateBankAccount(ctx, stranger, a.ID, BankAccountInput{
		BankName: "x", ShebaNumber: testSheba, AccountHolderName: "x",
	})
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.True(t, errors.Is(f.svc.DeleteBankAccount(ctx, stranger, a.ID), errors.NotFound))

	require.NoError(t, f.svc.DeleteBankAccount(ctx, f.user.ID, a.ID))
	accounts, err := f.svc.ListBankAccounts(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestDepositLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateDeposit(ctx, f.user.ID, d("5000"), models.PaymentMethodCardToCard)
	assert.True(t, errors.Is(err, errors.InvalidAmount))
	_, err = f.svc.CreateDeposit(ctx, f.user.ID, d("50000"), "cash")
	assert.True(t, errors.Is(err, errors.Invalid))

	deposit, err := f.svc.CreateDeposit(ctx, f.user.ID, d("250000"), models.PaymentMethodCardToCard)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusPending, deposit.Status)
	assert.True(t, strings.HasPrefix(deposit.TransactionID, "TXN"))

	_, err = f.svc.VerifyDeposit(ctx, deposit.ID)
	assert.True(t, errors.Is(err, errors.InvalidStateTransition), "only paid deposits can be verified")

	_, err = f.svc.AttachReceipt(ctx, f.user.ID, deposit.ID, "receipt.pdf", 100, nil)
	assert.True(t, errors.Is(err, errors.Invalid))
	_, err = f.svc.AttachReceipt(ctx, f.user.ID, deposit.ID, "receipt.png", 6*1024*1024, nil)
	assert.True(t, errors.Is(err, errors.Invalid))

	paid, err := f.svc.AttachReceipt(ctx, f.user.ID, deposit.ID, "receipt.JPG", 2048, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusPaid, paid.Status)
	assert.Equal(t, "receipt.JPG", paid.ReceiptRef)
	testutil.RequireDecimal(t, "0", testutil.LoadWallet(t, f.db, f.user.ID).BalanceIRR)

	verified, err := f.svc.VerifyDeposit(ctx, deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusVerified, verified.Status)
	assert.NotNil(t, verified.VerifiedAt)
	testutil.RequireDecimal(t, "250000", testutil.LoadWallet(t, f.db, f.user.ID).BalanceIRR)

	var entry models.WalletTransaction
	require.NoError(t, f.db.Where("reference_id = ?", deposit.TransactionID).First(&entry).Error)
	assert.Equal(t, models.TransactionTypeDeposit, entry.TransactionType)
	assert.Equal(t, models.TransactionStatusCompleted, entry.Status)

	_, err = f.svc.VerifyDeposit(ctx, deposit.ID)
	assert.True(t, errors.Is(err, errors.InvalidStateTransition))
	testutil.RequireDecimal(t, "250000", testutil.LoadWallet(t, f.db, f.user.ID).BalanceIRR)

	require.Len(t, f.sms.sent, 1)
	assert.Equal(t, "deposit_approved", f.sms.sent[0].kind)
	assert.Equal(t, f.user.PhoneNumber, f.sms.sent[0].phone)
	assert.Contains(t, f.recorder.Types(), events.DepositVerified)
}

func TestDepositRejectAndCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rejected, err := f.svc.CreateDeposit(ctx, f.user.ID, d("20000"), models.PaymentMethodOnline)
	require.NoError(t, err)
	out, err := f.svc.RejectDeposit(ctx, rejected.ID, "receipt does not match")
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusRejected, out.Status)
	assert.Equal(t, "receipt does not match", out.Notes)

	cancelled, err := f.svc.CreateDeposit(ctx, f.user.ID, d("20000"), models.PaymentMethodOnline)
	require.NoError(t, err)
	_, err = f.svc.CancelDeposit(ctx, uuid.New(), cancelled.ID)
	assert.True(t, errors.Is(err, errors.NotFound))
	out, err = f.svc.CancelDeposit(ctx, f.user.ID, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusCancelled, out.Status)

	_, err = f.svc.AttachReceipt(ctx, f.user.ID, cancelled.ID, "r.png", 10, nil)
	assert.True(t, errors.Is(err, errors.InvalidStateTransition))

	list, total, err := f.svc.ListDeposits(ctx, DepositFilter{UserID: f.user.ID, Status: models.DepositStatusRejected})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, rejected.ID, list[0].ID)

	testutil.RequireDecimal(t, "0", testutil.LoadWallet(t, f.db, f.user.ID).BalanceIRR)
}

func TestAttachReceiptStoresFile(t *testing.T) {
	f := setup(t)
	store, err := NewDiskReceiptStore(t.TempDir())
	require.NoError(t, err)
	f.svc.receipts = store
	ctx := context.Background()

	deposit, err := f.svc.CreateDeposit(ctx, f.user.ID, d("20000"), models.PaymentMethodCardToCard)
	require.NoError(t, err)
	body := []byte("png bytes")
	paid, err := f.svc.AttachReceipt(ctx, f.user.ID, deposit.ID, "receipt.png", int64(len(body)), bytes.NewReader(body))
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(paid.ReceiptRef, "receipts/"))
	stored, err := os.ReadFile(filepath.Join(store.dir, strings.TrimPrefix(paid.ReceiptRef, "receipts/")))
	require.NoError(t, err)
	assert.Equal(t, body, stored)
}

func TestWithdrawalCreateAndCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, f.user.ID, "1000000", "0")
	a := f.account(t)

	wr, err := f.svc.CreateWithdrawal(ctx, f.user.ID, a.ID, d("500000"))
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusPending, wr.Status)
	testutil.RequireDecimal(t, "2500", wr.Fee)

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "1000000", w.BalanceIRR)
	testutil.RequireDecimal(t, "500000", w.FrozenBalanceIRR)
	testutil.RequireDecimal(t, "500000", w.AvailableIRR())

	var entry models.WalletTransaction
	require.NoError(t, f.db.Where("reference_id = ?", wr.TransactionID).First(&entry).Error)
	assert.Equal(t, models.TransactionTypeWithdraw, entry.TransactionType)
	assert.Equal(t, models.TransactionStatusPending, entry.Status)

	cancelled, err := f.svc.CancelWithdrawal(ctx, f.user.ID, wr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCancelled, cancelled.Status)

	w = testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "0", w.FrozenBalanceIRR)
	testutil.RequireDecimal(t, "1000000", w.AvailableIRR())

	require.NoError(t, f.db.First(&entry, "id = ?", entry.ID).Error)
	assert.Equal(t, models.TransactionStatusCancelled, entry.Status)

	_, err = f.svc.CancelWithdrawal(ctx, f.user.ID, wr.ID)
	assert.True(t, errors.Is(err, errors.InvalidStateTransition))
	assert.Equal(t, []string{events.WithdrawalCreated, events.WithdrawalCancelled}, f.recorder.Types())
}

func TestWithdrawalRejectsBadRequests(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, f.user.ID, "100000", "0")
	a := f.account(t)

	_, err := f.svc.CreateWithdrawal(ctx, f.user.ID, a.ID, d("40000"))
	assert.True(t, errors.Is(err, errors.InvalidAmount))

	_, err = f.svc.CreateWithdrawal(ctx, f.user.ID, a.ID, d("150000"))
	assert.True(t, errors.Is(err, errors.InsufficientFunds))

	other := testutil.CreateUser(t, f.db, "+989351112233")
	_, err = f.svc.CreateWithdrawal(ctx, other.ID, a.ID, d("60000"))
	assert.True(t, errors.Is(err, errors.NotFound), "bank account of another user")

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "0", w.FrozenBalanceIRR)
	var count int64
	require.NoError(t, f.db.Model(&models.WithdrawalRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWithdrawalApproveAndComplete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, f.user.ID, "1000000", "0")
	a := f.account(t)

	wr, err := f.svc.CreateWithdrawal(ctx, f.user.ID, a.ID, d("500000"))
	require.NoError(t, err)

	_, err = f.svc.CompleteWithdrawal(ctx, wr.ID, "")
	assert.True(t, errors.Is(err, errors.InvalidStateTransition), "pending withdrawals cannot complete")

	approved, err := f.svc.ApproveWithdrawal(ctx, wr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusApproved, approved.Status)
	testutil.RequireDecimal(t, "500000", testutil.LoadWallet(t, f.db, f.user.ID).FrozenBalanceIRR)
	require.Len(t, f.sms.sent, 1)
	assert.Equal(t, "withdrawal_approved", f.sms.sent[0].kind)
	testutil.RequireDecimal(t, "500000", f.sms.sent[0].amount)

	completed, err := f.svc.CompleteWithdrawal(ctx, wr.ID, "BANK-REF-1")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, completed.Status)
	assert.Equal(t, "BANK-REF-1", completed.TrackingCode)
	assert.NotNil(t, completed.ProcessedAt)

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "497500", w.BalanceIRR)
	testutil.RequireDecimal(t, "0", w.FrozenBalanceIRR)

	var entry models.WalletTransaction
	require.NoError(t, f.db.Where("reference_id = ?", wr.TransactionID).First(&entry).Error)
	assert.Equal(t, models.TransactionStatusCompleted, entry.Status)

	_, err = f.svc.RejectWithdrawal(ctx, wr.ID, "too late")
	assert.True(t, errors.Is(err, errors.InvalidStateTransition))

	got, err := f.svc.GetWithdrawal(ctx, f.user.ID, wr.ID)
	require.NoError(t, err)
	require.NotNil(t, got.BankAccount)
	assert.Equal(t, a.ID, got.BankAccount.ID)
}

func TestWithdrawalFeeMustBeCovered(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, f.user.ID, "50000", "0")
	a := f.account(t)

	// the whole balance leaves nothing for the 250 fee
	_, err := f.svc.CreateWithdrawal(ctx, f.user.ID, a.ID, d("50000"))
	assert.True(t, errors.Is(err, errors.InsufficientFunds))
	testutil.RequireDecimal(t, "0", testutil.LoadWallet(t, f.db, f.user.ID).FrozenBalanceIRR)

	testutil.Fund(t, f.db, f.user.ID, "50250", "0")
	wr, err := f.svc.CreateWithdrawal(ctx, f.user.ID, a.ID, d("50000"))
	require.NoError(t, err)
	_, err = f.svc.ApproveWithdrawal(ctx, wr.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteWithdrawal(ctx, wr.ID, "BANK-REF-2")
	require.NoError(t, err)

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "0", w.BalanceIRR)
	testutil.RequireDecimal(t, "0", w.FrozenBalanceIRR)
}

func TestCompletingOneWithdrawalKeepsOtherReservations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, f.user.ID, "1000000", "0")
	a := f.account(t)

	first, err := f.svc.CreateWithdrawal(ctx, f.user.ID, a.ID, d("400000"))
	require.NoError(t, err)
	second, err := f.svc.CreateWithdrawal(ctx, f.user.ID, a.ID, d("300000"))
	require.NoError(t, err)
	testutil.RequireDecimal(t, "700000", testutil.LoadWallet(t, f.db, f.user.ID).FrozenBalanceIRR)

	_, err = f.svc.ApproveWithdrawal(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteWithdrawal(ctx, first.ID, "BANK-REF-3")
	require.NoError(t, err)

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "598000", w.BalanceIRR)
	testutil.RequireDecimal(t, "300000", w.FrozenBalanceIRR)

	_, err = f.svc.CancelWithdrawal(ctx, f.user.ID, second.ID)
	require.NoError(t, err)
	w = testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "598000", w.BalanceIRR)
	testutil.RequireDecimal(t, "0", w.FrozenBalanceIRR)
}

func TestWithdrawalProcessingAndGeneratedTrackingCode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, f.user.ID, "1000000", "0")
	a := f.account(t)

	wr, err := f.svc.CreateWithdrawal(ctx, f.user.ID, a.ID, d("100000"))
	require.NoError(t, err)
	_, err = f.svc.ProcessWithdrawal(ctx, wr.ID)
	assert.True(t, errors.Is(err, errors.InvalidStateTransition))

	_, err = f.svc.ApproveWithdrawal(ctx, wr.ID)
	require.NoError(t, err)
	processing, err := f.svc.ProcessWithdrawal(ctx, wr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusProcessing, processing.Status)

	_, err = f.svc.CancelWithdrawal(ctx, f.user.ID, wr.ID)
	assert.True(t, errors.Is(err, errors.InvalidStateTransition))

	completed, err := f.svc.CompleteWithdrawal(ctx, wr.ID, "  ")
	require.NoError(t, err)
	assert.Len(t, completed.TrackingCode, 26)
}

func TestWithdrawalReject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, f.user.ID, "300000", "0")
	a := f.account(t)

	wr, err := f.svc.CreateWithdrawal(ctx, f.user.ID, a.ID, d("200000"))
	require.NoError(t, err)
	_, err = f.svc.ApproveWithdrawal(ctx, wr.ID)
	require.NoError(t, err)

	rejected, err := f.svc.RejectWithdrawal(ctx, wr.ID, "sheba mismatch")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusRejected, rejected.Status)
	assert.Equal(t, "sheba mismatch", rejected.RejectionReason)

	w := testutil.LoadWallet(t, f.db, f.user.ID)
	testutil.RequireDecimal(t, "300000", w.BalanceIRR)
	testutil.RequireDecimal(t, "0", w.FrozenBalanceIRR)

	list, total, err := f.svc.ListWithdrawals(ctx, WithdrawalFilter{Status: models.WithdrawalStatusRejected})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)

	_, _, err = f.svc.ListWithdrawals(ctx, WithdrawalFilter{Status: "lost"})
	assert.True(t, errors.Is(err, errors.Invalid))
}
