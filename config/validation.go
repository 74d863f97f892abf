package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/metadata"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	rules := map[string]validator.Func{
		"mountpoint": func(fl validator.FieldLevel) bool {
			_, err := dokan.NormalizeMountPoint(fl.Field().String())
			return err == nil
		},
		"mountflag": func(fl validator.FieldLevel) bool {
			_, err := dokan.ParseMountFlags([]string{fl.Field().String()})
			return err == nil
		},
		"readonlymode": func(fl validator.FieldLevel) bool {
			_, err := metadata.ParseReadOnlyMode(fl.Field().String())
			return err == nil
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	return v
}

// Validate checks the struct tags, then the selected
// backend section.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if _, err := decodeBackend(cfg.Backend); err != nil {
		return err
	}
	return nil
}

// formatValidationError reports the first failed rule.
func formatValidationError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		e := errs[0]
		return errors.Errorf("%s: failed on %q rule (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
