package dbutil

import (
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/pkg/errors"
)

func FindOne[T any](db *gorm.DB) (*T, error) {
	var item T
	result := db.Limit(1).Find(&item)
	if result.Error != nil {
		return nil, WrapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errors.NotFound
	}
	return &item, nil
}

// Page bounds a list query. Zero values select the defaults.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Apply adds LIMIT/OFFSET to a query, clamping the limit.
func (p Page) Apply(db *gorm.DB) *gorm.DB {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return db.Limit(limit).Offset(offset)
}
