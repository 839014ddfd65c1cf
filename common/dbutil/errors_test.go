package dbutil

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/pkg/errors"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil))
	assert.True(t, errors.Is(WrapError(gorm.ErrRecordNotFound), errors.NotFound))

	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: DuplicateKeyErrorCode})
	wrapped := WrapError(dup)
	assert.True(t, errors.Is(wrapped, errors.Conflict))

	domain := errors.InsufficientFunds.Explain("short")
	assert.Same(t, domain, WrapError(domain))

	plain := fmt.Errorf("boom")
	assert.Equal(t, plain, WrapError(plain))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: SerializationFailureErrorCode}))
	assert.True(t, IsRetryable(fmt.Errorf("tx: %w", &pgconn.PgError{Code: DeadlockDetectedErrorCode})))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: DuplicateKeyErrorCode}))
	assert.False(t, IsRetryable(fmt.Errorf("boom")))
}
