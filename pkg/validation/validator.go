package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/Aidin1998/talabin/pkg/errors"
)

var (
	shebaRegex  = regexp.MustCompile(`^(IR)?[0-9]{24}$`)
	cardRegex   = regexp.MustCompile(`^[0-9]{16}$`)
	mobileRegex = regexp.MustCompile(`^\+989[0-9]{9}$`)
)

// Receipt upload constraints
var allowedReceiptExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// DefaultMaxReceiptSize is the largest accepted receipt image (5MB).
const DefaultMaxReceiptSize int64 = 5 * 1024 * 1024

// Validator validates request structs and sanitizes free text
type Validator struct {
	validator *validator.Validate
	logger    *zap.Logger
	sanitizer *bluemonday.Policy
}

// NewValidator creates a new validator with the custom banking tags registered
func NewValidator(logger *zap.Logger) *Validator {
	v := validator.New()
	RegisterCustomValidators(v)

	return &Validator{
		validator: v,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// RegisterCustomValidators adds the sheba, card_number and ir_mobile tags to
// a validator engine. The API server also registers them on gin's engine.
func RegisterCustomValidators(v *validator.Validate) {
	_ = v.RegisterValidation("sheba", func(fl validator.FieldLevel) bool {
		return shebaRegex.MatchString(NormalizeSheba(fl.Field().String()))
	})
	_ = v.RegisterValidation("card_number", func(fl validator.FieldLevel) bool {
		return cardRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("ir_mobile", func(fl validator.FieldLevel) bool {
		_, err := NormalizePhoneNumber(fl.Field().String())
		return err == nil
	})
}

// ValidateStruct validates a struct using struct tags. Failures are returned
// as an Invalid error carrying one field error per violated tag.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Invalid.Explain("invalid request").Wrap(err)
	}
	return FromValidationErrors(verrs)
}

// FromValidationErrors converts validator errors into an Invalid error.
func FromValidationErrors(verrs validator.ValidationErrors) error {
	out := errors.Invalid.Explain("request validation failed")
	for _, fe := range verrs {
		out = out.WithField(fe.Tag(), fe.Field(), errorMessage(fe))
	}
	return out
}

// SanitizeInput strips markup from user supplied free text
func (v *Validator) SanitizeInput(input string) string {
	if input == "" {
		return input
	}
	return strings.TrimSpace(v.sanitizer.Sanitize(input))
}

// NormalizeSheba upper-cases a sheba number and strips separators.
func NormalizeSheba(sheba string) string {
	s := strings.ToUpper(strings.TrimSpace(sheba))
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "-", "")
}

// NormalizePhoneNumber converts 09xx, 98xx, +98xx and 9xx forms of an Iranian
// mobile number to +98xxxxxxxxxx.
func NormalizePhoneNumber(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	switch {
	case strings.HasPrefix(d, "0"):
		d = "98" + d[1:]
	case !strings.HasPrefix(d, "98"):
		d = "98" + d
	}

	normalized := "+" + d
	if !mobileRegex.MatchString(normalized) {
		return "", errors.Invalid.Explain("invalid mobile number").WithField("ir_mobile", "phone_number", "must be an Iranian mobile number")
	}
	return normalized, nil
}

// ValidateReceipt checks a receipt image by extension and size.
func ValidateReceipt(filename string, size, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxReceiptSize
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedReceiptExtensions[ext] {
		return errors.Invalid.Explain("receipt must be a jpg, jpeg or png image").WithField("extension", "receipt", ext)
	}
	if size <= 0 {
		return errors.Invalid.Explain("receipt file is empty")
	}
	if size > maxSize {
		return errors.Invalid.Explain("receipt exceeds the maximum size of %d bytes", maxSize).WithField("max", "receipt", fmt.Sprint(size))
	}
	return nil
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "sheba":
		return fmt.Sprintf("%s must be a 24 digit sheba number", fe.Field())
	case "card_number":
		return fmt.Sprintf("%s must be a 16 digit card number", fe.Field())
	case "ir_mobile":
		return fmt.Sprintf("%s must be an Iranian mobile number", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
