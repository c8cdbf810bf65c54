// Package validation checks request bodies before they are sent to the
// village API. Failed checks never reach the API.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Indonesian mobile numbers: 08 followed by 8 to 11 digits.
var phonePattern = regexp.MustCompile(`^08[0-9]{8,11}$`)

// ValidPhone reports whether s is an acceptable phone number.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// FieldErrors maps JSON field names to user-facing messages.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+": "+v)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator wraps a configured validator.Validate.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the portal's custom rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone_id", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct validates s and returns FieldErrors, or nil when s is valid.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "wajib diisi"
	case "phone_id":
		return "nomor HP harus diawali 08 dan terdiri dari 10-13 digit"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("minimal %s karakter", fe.Param())
		}
		return fmt.Sprintf("minimal %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("maksimal %s karakter", fe.Param())
		}
		return fmt.Sprintf("maksimal %s", fe.Param())
	case "eqfield":
		return "konfirmasi tidak cocok"
	case "email":
		return "format email tidak valid"
	case "numeric":
		return "harus berupa angka"
	case "oneof":
		return "pilihan tidak valid"
	case "latitude", "longitude":
		return "koordinat tidak valid"
	}
	return "tidak valid"
}
