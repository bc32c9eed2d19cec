package application

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-council/internal/domain"
)

// validate is shared by every validated struct in this package.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterCouncilValidators(v); err != nil {
		panic(err)
	}
	return v
}

// RegisterCouncilValidators adds the custom tags used by council config and
// turn requests to v.
func RegisterCouncilValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("modelid", validateModelID); err != nil {
		return fmt.Errorf("failed to register modelid validator: %w", err)
	}
	if err := v.RegisterValidation("effort", validateEffort); err != nil {
		return fmt.Errorf("failed to register effort validator: %w", err)
	}
	return nil
}

// validateModelID accepts a non-empty model identifier without whitespace
// or control characters. Unknown ids are allowed; they route to the OpenAI
// family and abstain if unsupported.
func validateModelID(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" || len(model) > 200 {
		return false
	}
	for _, r := range model {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func validateEffort(fl validator.FieldLevel) bool {
	switch domain.ReasoningEffort(fl.Field().String()) {
	case "", domain.ReasoningOff, domain.ReasoningLow, domain.ReasoningMedium, domain.ReasoningHigh:
		return true
	}
	return false
}

// toValidationError converts validator output into a domain.ValidationError
// naming each failing field.
func toValidationError(entity string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := domain.NewValidationError(entity)
	for _, fe := range fieldErrs {
		ve.AddError(fmt.Sprintf("%s failed on %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return ve
}
