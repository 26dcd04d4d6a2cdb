package handler

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"conference/internal/fees"
	"conference/internal/registration"
)

var (
	slugRegex      = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	validatorsOnce sync.Once
)

// registerValidators adds the custom binding rules to gin's validator.
func registerValidators(log zerolog.Logger) {
	validatorsOnce.Do(func() { installValidators(log) })
}

func installValidators(log zerolog.Logger) {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		log.Warn().Msg("binding validator is not go-playground; custom rules disabled")
		return
	}
	v.RegisterTagNameFunc(fieldName)
	rules := map[string]validator.Func{
		"yyyymmdd":   validateDate,
		"slug":       validateSlug,
		"period":     validatePeriod,
		"pay_status": validatePayStatus,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			log.Warn().Err(err).Str("tag", tag).Msg("register validation")
		}
	}
}

// fieldName reports fields by their wire name.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

func validateDate(fl validator.FieldLevel) bool {
	_, ok := fees.ParseDate(fl.Field().String())
	return ok
}

func validateSlug(fl validator.FieldLevel) bool {
	return slugRegex.MatchString(fl.Field().String())
}

func validatePeriod(fl validator.FieldLevel) bool {
	_, ok := fees.ParsePeriod(fl.Field().String())
	return ok
}

func validatePayStatus(fl validator.FieldLevel) bool {
	_, ok := registration.ParseStatus(fl.Field().String())
	return ok
}

// bindingMessage turns the first validation failure into a readable message.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body: " + err.Error()
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "gte":
		return field + " must be at least " + fe.Param()
	case "yyyymmdd":
		return field + " must be a date formatted YYYY-MM-DD"
	case "slug":
		return field + " must be lowercase words separated by dashes"
	case "period":
		return field + " is not a registration period"
	case "pay_status":
		return field + " must be one of pending, paid, approved, rejected"
	}
	return field + " is invalid"
}
