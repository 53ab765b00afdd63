package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "enrollment/pkg/domain-errors"
	s "enrollment/pkg/string"
)

var (
	identityPattern = regexp.MustCompile(`^[0-9]{12}$`)
	pinCodePattern  = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	epicPattern     = regexp.MustCompile(`^[A-Z]{3}[0-9]{7}$`)
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("identity12", matches(identityPattern))
	_ = v.RegisterValidation("pincode", matches(pinCodePattern))
	_ = v.RegisterValidation("phone", matches(phonePattern))
	_ = v.RegisterValidation("epic", matches(epicPattern))
	return v
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// IsIdentityNumber reports whether v is a well-formed 12-digit identity number.
func IsIdentityNumber(v string) bool { return identityPattern.MatchString(v) }

// IsPhone reports whether v looks like a dialable phone number.
func IsPhone(v string) bool { return phonePattern.MatchString(v) }

// Validate validates a struct using the default validator and returns a domain
// validation error listing every rejected field.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		fields := FieldErrors(err)
		if len(fields) == 0 {
			return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
		}
		return dErrors.NewValidation(ErrorMessage(err), fields...)
	}
	return nil
}

// FieldErrors converts validator errors into per-field results.
func FieldErrors(err error) []dErrors.FieldError {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nil
	}
	out := make([]dErrors.FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, dErrors.FieldError{Field: fieldPath(fe), Reason: reason(fe)})
	}
	return out
}

// ErrorMessage converts a validator error into a human-readable message
func ErrorMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "invalid request body"
	}
	fe := validationErrs[0]
	field := fieldPath(fe)
	if field == "" {
		return "invalid request body"
	}
	msg := field + " " + reason(fe)
	if len(validationErrs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(validationErrs)-1)
	}
	return msg
}

// fieldPath returns the JSON path of the field without the root struct name,
// e.g. "address.pin_code" or "references[1].contact".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	if fe.Field() != "" {
		return fe.Field()
	}
	return s.ToSnakeCase(fe.StructField())
}

func reason(fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required", "required_if", "required_with":
		return "is required"
	case "excluded_unless", "excluded_if", "excluded_without":
		return "must be empty"
	case "email":
		return "must be a valid email"
	case "uuid":
		return "must be a valid uuid"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must have length %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "notblank":
		return "must not be blank"
	case "identity12":
		return "must be exactly 12 digits"
	case "pincode":
		return "must be a 6 digit pin code"
	case "phone":
		return "must be a valid phone number"
	case "epic":
		return "must be a valid EPIC number"
	case "datetime":
		return fmt.Sprintf("must be a date in format %s", fe.Param())
	case "dive", "unique":
		return "contains duplicate or invalid entries"
	default:
		return "is invalid"
	}
}
