package shared

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{6,19}$`)

// NewValidator returns a validator that reports JSON field names and knows the "phone" tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidateStruct runs struct-tag validation and converts failures into a *ValidationError.
// prefix is prepended to every reported field path.
func ValidateStruct(v *validator.Validate, prefix string, s any) *ValidationError {
	verr := &ValidationError{}
	err := v.Struct(s)
	if err == nil {
		return verr
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add(prefix, err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		verr.Add(fieldPath(prefix, fe.Namespace()), tagMessage(fe))
	}
	return verr
}

func fieldPath(prefix, namespace string) string {
	// Namespace starts with the struct type name.
	if idx := strings.IndexByte(namespace, '.'); idx >= 0 {
		namespace = namespace[idx+1:]
	}
	if prefix == "" {
		return namespace
	}
	return prefix + "." + namespace
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must be a valid phone number"
	case "gtfield", "gtefield":
		return "must be after " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " rule"
	}
}
