package search

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidateFilters catches malformed filters before a request is sent.
func ValidateFilters(f SearchFilters) error {
	fields := map[string]string{}
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = message(fe)
		}
	}
	if _, bad := fields["birthDate"]; !bad && f.BirthDate != "" && f.DeathDate != "" {
		if _, bad := fields["deathDate"]; !bad {
			birth, _ := time.Parse("2006-01-02", f.BirthDate)
			death, _ := time.Parse("2006-01-02", f.DeathDate)
			if death.Before(birth) {
				fields["deathDate"] = "must not be before birth date"
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &domain.ValidationError{Fields: fields}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}
