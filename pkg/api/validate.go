package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("action", func(fl validator.FieldLevel) bool {
		return ActionKind(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("followup", func(fl validator.FieldLevel) bool {
		k := ActionKind(fl.Field().String())
		return k == ActionNone || k.IsValid()
	})
	_ = v.RegisterValidation("initial", func(fl validator.FieldLevel) bool {
		return ActionKind(fl.Field().String()).IsInitial()
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := jsonName(f); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

func jsonName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if tag == "-" {
		return ""
	}
	return tag
}

func validationError(base, err error) error {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		fe := fields[0]
		return fmt.Errorf("%w: %s failed '%s' check", base, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %w", base, err)
}
