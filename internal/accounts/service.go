// Package accounts registers users and manages their profile.
package accounts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/common/dbutil"
	"github.com/Aidin1998/talabin/internal/ledger"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/models"
	"github.com/Aidin1998/talabin/pkg/validation"
)

// Service manages users. Every user it creates owns a wallet from the start.
type Service struct {
	logger    *zap.Logger
	ledger    *ledger.Service
	validator *validation.Validator
}

func NewService(logger *zap.Logger, ledgerSvc *ledger.Service) *Service {
	return &Service{
		logger:    logger,
		ledger:    ledgerSvc,
		validator: validation.NewValidator(logger),
	}
}

func (s *Service) db(ctx context.Context) *gorm.DB {
	return s.ledger.DB().WithContext(ctx)
}

// Register creates a user and their empty wallet in one transaction.
func (s *Service) Register(ctx context.Context, phone, firstName, lastName string) (*models.User, error) {
	normalized, err := validation.NormalizePhoneNumber(phone)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		PhoneNumber: normalized,
		FirstName:   s.validator.SanitizeInput(firstName),
		LastName:    s.validator.SanitizeInput(lastName),
		IsActive:    true,
	}
	if err := s.validator.ValidateStruct(user); err != nil {
		return nil, err
	}

	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.User{}).Where("phone_number = ?", normalized).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check phone number: %w", err)
		}
		if existing > 0 {
			return errors.Conflict.Explain("phone number %s is already registered", normalized)
		}
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", dbutil.WrapError(err))
		}
		_, err := s.ledger.CreateWallet(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := dbutil.FindOne[models.User](s.db(ctx).Where("id = ?", userID))
	return user, notFound(err)
}

// IsStaff reports whether the user exists, is active and holds staff rights.
func (s *Service) IsStaff(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.Get(ctx, userID)
	if errors.Is(err, errors.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsStaff && user.IsActive, nil
}

// GetByPhone looks a user up by any accepted form of their phone number.
func (s *Service) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	normalized, err := validation.NormalizePhoneNumber(phone)
	if err != nil {
		return nil, err
	}
	user, err := dbutil.FindOne[models.User](s.db(ctx).Where("phone_number = ?", normalized))
	return user, notFound(err)
}

// UpdateProfile replaces the user's display name.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, firstName, lastName string) (*models.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.FirstName = s.validator.SanitizeInput(firstName)
	user.LastName = s.validator.SanitizeInput(lastName)
	if err := s.validator.ValidateStruct(user); err != nil {
		return nil, err
	}
	if err := s.db(ctx).Model(user).Updates(map[string]interface{}{
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// SetStaff grants or revokes back-office access.
func (s *Service) SetStaff(ctx context.Context, userID uuid.UUID, staff bool) (*models.User, error) {
	result := s.db(ctx).Model(&models.User{}).Where("id = ?", userID).Update("is_staff", staff)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errors.NotFound.Explain("user not found")
	}
	s.logger.Info("staff flag changed", zap.String("user_id", userID.String()), zap.Bool("is_staff", staff))
	return s.Get(ctx, userID)
}

func notFound(err error) error {
	if errors.Is(err, errors.NotFound) {
		return errors.NotFound.Explain("user not found")
	}
	return err
}
