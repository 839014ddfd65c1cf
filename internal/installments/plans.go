package installments

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/common/dbutil"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/models"
)

const maxDurationMonths = 60

// PlanInput describes a plan to create.
type PlanInput struct {
	Name           string          `json:"name" yaml:"name"`
	Description    string          `json:"description" yaml:"description"`
	DurationMonths int             `json:"duration_months" yaml:"duration_months"`
	InterestRate   decimal.Decimal `json:"interest_rate" yaml:"-"`
	MinAmount      decimal.Decimal `json:"min_amount" yaml:"-"`
	MaxAmount      decimal.Decimal `json:"max_amount" yaml:"-"`
	IsActive       *bool           `json:"is_active,omitempty" yaml:"is_active"`
}

func (in PlanInput) validate() error {
	out := errors.Invalid.Explain("invalid installment plan")
	bad := false
	if in.Name == "" {
		out, bad = out.WithField("required", "name", "name is required"), true
	}
	if in.DurationMonths < 1 || in.DurationMonths > maxDurationMonths {
		out, bad = out.WithField("range", "duration_months", fmt.Sprintf("must be between 1 and %d", maxDurationMonths)), true
	}
	if in.InterestRate.IsNegative() {
		out, bad = out.WithField("gte", "interest_rate", "must not be negative"), true
	}
	if !in.MinAmount.IsPositive() {
		out, bad = out.WithField("gt", "min_amount", "must be positive"), true
	}
	if in.MaxAmount.LessThan(in.MinAmount) {
		out, bad = out.WithField("gtefield", "max_amount", "must not be below min_amount"), true
	}
	if bad {
		return out
	}
	return nil
}

func (in PlanInput) apply(p *models.InstallmentPlan) {
	p.Name = in.Name
	p.Description = in.Description
	p.DurationMonths = in.DurationMonths
	p.InterestRate = in.InterestRate
	p.MinAmount = models.RoundCash(in.MinAmount)
	p.MaxAmount = models.RoundCash(in.MaxAmount)
	p.IsActive = in.IsActive == nil || *in.IsActive
}

// CreatePlan adds a plan to the catalogue.
func (s *Service) CreatePlan(ctx context.Context, in PlanInput) (*models.InstallmentPlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	plan := &models.InstallmentPlan{}
	in.apply(plan)
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		return savePlan(tx, plan)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("installment plan created", zap.String("plan_id", plan.ID.String()), zap.String("name", plan.Name))
	return plan, nil
}

// ListPlans returns the active plans, shortest first.
func (s *Service) ListPlans(ctx context.Context) ([]models.InstallmentPlan, error) {
	var plans []models.InstallmentPlan
	err := s.db(ctx).Where("is_active = ?", true).
		Order("duration_months ASC").
		Order("name ASC").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// GetPlan returns an active plan.
func (s *Service) GetPlan(ctx context.Context, planID uuid.UUID) (*models.InstallmentPlan, error) {
	plan, err := dbutil.FindOne[models.InstallmentPlan](s.db(ctx).Where("id = ? AND is_active = ?", planID, true))
	if errors.Is(err, errors.NotFound) {
		return nil, errors.NotFound.Explain("installment plan not found")
	}
	return plan, err
}

// seedFile is the YAML layout of a plan catalogue. Decimal fields are read as
// strings so that values such as 2.5 keep their exact form.
type seedFile struct {
	Plans []struct {
		PlanInput    `yaml:",inline"`
		InterestRate string `yaml:"interest_rate"`
		MinAmount    string `yaml:"min_amount"`
		MaxAmount    string `yaml:"max_amount"`
	} `yaml:"plans"`
}

// ParsePlans reads a plan catalogue.
func ParsePlans(r io.Reader) ([]PlanInput, error) {
	var file seedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode plan file: %w", err)
	}

	plans := make([]PlanInput, 0, len(file.Plans))
	for i, raw := range file.Plans {
		in := raw.PlanInput
		var err error
		if in.InterestRate, err = parseDecimal(raw.InterestRate, "0"); err != nil {
			return nil, fmt.Errorf("plan %d: invalid interest_rate: %w", i+1, err)
		}
		if in.MinAmount, err = parseDecimal(raw.MinAmount, ""); err != nil {
			return nil, fmt.Errorf("plan %d: invalid min_amount: %w", i+1, err)
		}
		if in.MaxAmount, err = parseDecimal(raw.MaxAmount, ""); err != nil {
			return nil, fmt.Errorf("plan %d: invalid max_amount: %w", i+1, err)
		}
		if err := in.validate(); err != nil {
			return nil, fmt.Errorf("plan %d: %w", i+1, err)
		}
		plans = append(plans, in)
	}
	return plans, nil
}

func parseDecimal(raw, fallback string) (decimal.Decimal, error) {
	if raw == "" {
		raw = fallback
	}
	return decimal.NewFromString(raw)
}

// SeedPlans loads a YAML catalogue and upserts its plans by name. It returns
// the number of plans written.
func (s *Service) SeedPlans(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()

	plans, err := ParsePlans(f)
	if err != nil {
		return 0, err
	}

	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		for _, in := range plans {
			var plan models.InstallmentPlan
			err := tx.Where("name = ?", in.Name).First(&plan).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load plan %q: %w", in.Name, err)
			}
			in.apply(&plan)
			if err := savePlan(tx, &plan); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("installment plans seeded", zap.String("path", path), zap.Int("count", len(plans)))
	return len(plans), nil
}

// savePlan inserts or updates a plan. is_active has a column default, so an
// inactive new plan is written in a second statement.
func savePlan(tx *gorm.DB, plan *models.InstallmentPlan) error {
	if err := tx.Save(plan).Error; err != nil {
		return fmt.Errorf("failed to save plan %q: %w", plan.Name, dbutil.WrapError(err))
	}
	if !plan.IsActive {
		if err := tx.Model(plan).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate plan %q: %w", plan.Name, err)
		}
	}
	return nil
}
