package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"moodledger/internal/apperrors"
	"moodledger/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report json field names rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("isodate", validateISODate)

	return v
}

// validateISODate accepts strict yyyy-mm-dd calendar dates
func validateISODate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != len(models.DateLayout) {
		return false
	}
	_, err := time.Parse(models.DateLayout, s)
	return err == nil
}

// ValidateStruct validates a struct using go-playground/validator.
// Failures come back as *apperrors.ValidationError with one FieldError per field.
func ValidateStruct(s interface{}) error {
	if s == nil {
		return nil
	}

	// Check if it's a pointer to a struct
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validator: expected a struct, got %T", s)
	}

	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make([]apperrors.FieldError, 0, len(ve))
		for _, e := range ve {
			fields = append(fields, apperrors.FieldError{
				Field:   e.Field(),
				Value:   e.Value(),
				Message: describe(e),
				Code:    e.Tag(),
			})
		}
		return apperrors.NewDetailedValidationError("invalid "+val.Type().Name(), fields)
	}
	return apperrors.NewValidationError("validation failed", err)
}

// ValidateDate checks a single ledger date key
func ValidateDate(date string) error {
	if len(date) != len(models.DateLayout) {
		return apperrors.NewDetailedValidationError("invalid date", []apperrors.FieldError{{
			Field: "date", Value: date, Message: "must be formatted yyyy-mm-dd", Code: "isodate",
		}})
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return apperrors.NewDetailedValidationError("invalid date", []apperrors.FieldError{{
			Field: "date", Value: date, Message: "not a calendar date", Code: "isodate",
		}})
	}
	return nil
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "unique":
		return "must not contain duplicates"
	case "isodate":
		return "must be formatted yyyy-mm-dd"
	default:
		return "failed " + e.Tag()
	}
}
