package fiat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/common/dbutil"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/models"
	"github.com/Aidin1998/talabin/pkg/validation"
)

// BankAccountInput is the user supplied part of a bank account.
type BankAccountInput struct {
	BankName          string `json:"bank_name" validate:"required,max=100"`
	AccountNumber     string `json:"account_number" validate:"max=50"`
	ShebaNumber       string `json:"sheba_number" validate:"required,sheba"`
	CardNumber        string `json:"card_number" validate:"omitempty,card_number"`
	AccountHolderName string `json:"account_holder_name" validate:"required,max=200"`
	IsDefault         bool   `json:"is_default"`
}

func (s *Service) normalize(in BankAccountInput) (BankAccountInput, error) {
	if err := s.validator.ValidateStruct(in); err != nil {
		return in, err
	}
	in.BankName = s.validator.SanitizeInput(in.BankName)
	in.AccountHolderName = s.validator.SanitizeInput(in.AccountHolderName)
	in.AccountNumber = s.validator.SanitizeInput(in.AccountNumber)
	in.ShebaNumber = validation.NormalizeSheba(in.ShebaNumber)
	return in, nil
}

// AddBankAccount stores a new bank account. A default account replaces the
// user's previous default.
func (s *Service) AddBankAccount(ctx context.Context, userID uuid.UUID, in BankAccountInput) (*models.BankAccount, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	account := &models.BankAccount{
		UserID:            userID,
		BankName:          in.BankName,
		AccountNumber:     in.AccountNumber,
		ShebaNumber:       in.ShebaNumber,
		CardNumber:        in.CardNumber,
		AccountHolderName: in.AccountHolderName,
		IsDefault:         in.IsDefault,
	}
	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if account.IsDefault {
			if err := clearDefault(tx, userID, uuid.Nil); err != nil {
				return err
			}
		}
		if err := tx.Create(account).Error; err != nil {
			return fmt.Errorf("failed to create bank account: %w", dbutil.WrapError(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// UpdateBankAccount replaces the details of one of the user's accounts.
func (s *Service) UpdateBankAccount(ctx context.Context, userID, accountID uuid.UUID, in BankAccountInput) (*models.BankAccount, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	var account *models.BankAccount
	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := lockRow[models.BankAccount](tx, "bank account", "id = ? AND user_id = ?", accountID, userID)
		if err != nil {
			return err
		}
		if in.IsDefault && !a.IsDefault {
			if err := clearDefault(tx, userID, a.ID); err != nil {
				return err
			}
		}
		a.BankName = in.BankName
		a.AccountNumber = in.AccountNumber
		a.CardNumber = in.CardNumber
		a.AccountHolderName = in.AccountHolderName
		a.IsDefault = in.IsDefault
		if a.ShebaNumber != in.ShebaNumber {
			a.ShebaNumber = in.ShebaNumber
			a.IsVerified = false
		}
		if err := tx.Save(a).Error; err != nil {
			return fmt.Errorf("failed to update bank account: %w", err)
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteBankAccount removes one of the user's accounts.
func (s *Service) DeleteBankAccount(ctx context.Context, userID, accountID uuid.UUID) error {
	result := s.db(ctx).Where("id = ? AND user_id = ?", accountID, userID).Delete(&models.BankAccount{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete bank account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NotFound.Explain("bank account not found")
	}
	return nil
}

// ListBankAccounts returns the user's accounts, default first.
func (s *Service) ListBankAccounts(ctx context.Context, userID uuid.UUID) ([]models.BankAccount, error) {
	var accounts []models.BankAccount
	err := s.db(ctx).Where("user_id = ?", userID).
		Order("is_default DESC").
		Order("created_at DESC").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}
	return accounts, nil
}

// VerifyBankAccount marks an account as checked by staff.
func (s *Service) VerifyBankAccount(ctx context.Context, accountID uuid.UUID) (*models.BankAccount, error) {
	result := s.db(ctx).Model(&models.BankAccount{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{"is_verified": true, "updated_at": s.now()})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to verify bank account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errors.NotFound.Explain("bank account not found")
	}
	return dbutil.FindOne[models.BankAccount](s.db(ctx).Where("id = ?", accountID))
}

func clearDefault(tx *gorm.DB, userID, keep uuid.UUID) error {
	err := tx.Model(&models.BankAccount{}).
		Where("user_id = ? AND is_default = ? AND id <> ?", userID, true, keep).
		Update("is_default", false).Error
	if err != nil {
		return fmt.Errorf("failed to clear default bank account: %w", err)
	}
	return nil
}
