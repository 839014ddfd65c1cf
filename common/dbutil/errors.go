package dbutil

import (
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/pkg/errors"
)

const (
	DuplicateKeyErrorCode         = "23505"
	SerializationFailureErrorCode = "40001"
	DeadlockDetectedErrorCode     = "40P01"
)

// WrapError wraps a gorm error.
func WrapError(err error) error {
	var pgErr *pgconn.PgError

	if err == nil {
		return nil
	} else if _, ok := err.(*errors.Error); ok {
		return err
	} else if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFound
	} else if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Conflict.
			Explain("duplication of key").
			Wrap(err)
	} else if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case DuplicateKeyErrorCode:
			return errors.Conflict.
				Explain("duplication of key").
				Wrap(err)
		}
	}

	return err
}

// IsRetryable reports whether a transaction failed on a serialization
// failure or deadlock and may be retried from the start.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == SerializationFailureErrorCode || pgErr.Code == DeadlockDetectedErrorCode
	}
	return false
}
