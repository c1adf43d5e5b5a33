package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), unicode.IsSpace) < 0
	})
	return v
}

// Validate checks the field rules of e. The first failing field is reported
// as a *ValidationError.
func Validate(e Entry) error {
	err := validate.Struct(e)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate entry %q: %w", e.ID, err)
	}
	fe := verrs[0]
	return &ValidationError{ID: e.ID, Field: fieldName(fe), Reason: reason(fe)}
}

// ValidateReview checks the invariants of a ReviewState against the ease bounds.
func ValidateReview(id string, rs ReviewState, minEase, maxEase float64) error {
	switch {
	case rs.Ease < minEase || rs.Ease > maxEase:
		return &ValidationError{ID: id, Field: "ease", Reason: fmt.Sprintf("must be within [%g, %g]", minEase, maxEase)}
	case rs.Interval < 0:
		return &ValidationError{ID: id, Field: "interval", Reason: "must not be negative"}
	case rs.Streak < 0:
		return &ValidationError{ID: id, Field: "streak", Reason: "must not be negative"}
	case rs.Reviews < 0:
		return &ValidationError{ID: id, Field: "reviews", Reason: "must not be negative"}
	case rs.NextDue.IsZero():
		return &ValidationError{ID: id, Field: "next_due", Reason: "is required"}
	case !rs.LastReviewed.IsZero() && rs.NextDue.Before(rs.LastReviewed):
		return &ValidationError{ID: id, Field: "next_due", Reason: "is before last_reviewed"}
	}
	return nil
}

// fieldName turns "tags[2]" into "tags".
func fieldName(fe validator.FieldError) string {
	name, _, _ := strings.Cut(fe.Field(), "[")
	return name
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "identifier":
		return "must not contain whitespace"
	}
	return "failed " + fe.Tag()
}
