package validator

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	RegisterCustomValidations(validate)
}

func RegisterCustomValidations(v *validator.Validate) {
	v.RegisterValidation("lat", validateLat)
	v.RegisterValidation("lng", validateLng)
	v.RegisterValidation("radius_km", validateRadiusKM)
	v.RegisterValidation("trimmed_min", validateTrimmedMin)
	v.RegisterValidation("trimmed_max", validateTrimmedMax)
	v.RegisterValidation("image_url", validateImageURL)
}

func validateLat(fl validator.FieldLevel) bool {
	lat := fl.Field().Float()
	return lat >= -90.0 && lat <= 90.0
}

func validateLng(fl validator.FieldLevel) bool {
	lng := fl.Field().Float()
	return lng >= -180.0 && lng <= 180.0
}

func validateRadiusKM(fl validator.FieldLevel) bool {
	radius := fl.Field().Float()
	return radius >= 0 && radius <= 100.0
}

func trimmedLen(fl validator.FieldLevel) int {
	return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String()))
}

func validateTrimmedMin(fl validator.FieldLevel) bool {
	var n int
	if _, err := fmt.Sscan(fl.Param(), &n); err != nil {
		return false
	}
	return trimmedLen(fl) >= n
}

func validateTrimmedMax(fl validator.FieldLevel) bool {
	var n int
	if _, err := fmt.Sscan(fl.Param(), &n); err != nil {
		return false
	}
	return trimmedLen(fl) <= n
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {},
}

func validateImageURL(fl validator.FieldLevel) bool {
	return IsImageURL(fl.Field().String())
}

// IsImageURL reports whether raw is an absolute URL whose path ends in a
// supported image extension.
func IsImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// Messages runs struct validation and returns one human-readable message per
// failed field, in field declaration order. Nil means valid.
func Messages(s interface{}) []string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "lat":
		return field + " must be between -90 and 90"
	case "lng":
		return field + " must be between -180 and 180"
	case "radius_km":
		return field + " must be between 0 and 100"
	case "trimmed_min":
		return fmt.Sprintf("%s must contain at least %s characters", field, fe.Param())
	case "trimmed_max":
		return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
	case "url":
		return field + " is not a valid URL"
	case "image_url":
		return field + " must point to an image (jpg, jpeg, png, webp)"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "required_with":
		return fmt.Sprintf("%s is required together with %s", field, strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
