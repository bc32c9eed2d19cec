package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// decodeArgs overlays model- or user-supplied arguments onto dst, which
// carries the defaults, and validates the result. Keys not in dst are
// ignored.
func decodeArgs(args map[string]any, dst any) error {
	data, err := yaml.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return describeValidation(err)
	}
	return nil
}

func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = fmt.Sprintf("%s failed on %q", strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, ", "))
}
