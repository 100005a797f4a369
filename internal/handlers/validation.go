package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/go-playground/validator/v10"
)

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("resource", func(fl validator.FieldLevel) bool {
		_, err := models.ParseResource(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01-02", strings.TrimSpace(fl.Field().String()))
		return err == nil
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", strings.TrimSpace(fl.Field().String()))
		return err == nil
	})
	return v
}

// validateRequest returns a message for the first failing field, or "".
func validateRequest(req any) string {
	err := requestValidator.Struct(req)
	if err == nil {
		return ""
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return "invalid request"
	}

	fieldErr := validationErrors[0]
	field := fieldErr.Field()
	switch fieldErr.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fieldErr.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fieldErr.Param())
	case "email":
		return field + " must be a valid email"
	case "resource":
		return field + " must be one of futbol, paddle, tenis, golf"
	case "date":
		return field + " must be a date in YYYY-MM-DD format"
	case "hhmm":
		return field + " must be a time in HH:MM format"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fieldErr.Param(), " ", ", "))
	default:
		return field + " is invalid"
	}
}
