package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/go-playground/validator/v10"
)

var validTenant = regexp.MustCompile(`^[a-z0-9_\.-]+$`)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Publisher sends a named event. Implemented by [events.Publisher].
type Publisher interface {
	Publish(ctx context.Context, name string, payload any) error
}

// ValidateTenant rejects tenant identifiers outside of lowercase ASCII letters, digits, "_", "." and "-".
func ValidateTenant(tenant string) error {
	if !validTenant.MatchString(tenant) {
		return fmt.Errorf("%w: %q", shared.ErrInvalidTenant, tenant)
	}
	return nil
}

// validateListParams checks order against orders (any order when orders is nil) and the direction.
func validateListParams(params models.ListParams, orders []string) error {
	if params.Order != "" && orders != nil && !slices.Contains(orders, params.Order) {
		return shared.NewValidationError(shared.ErrInvalidOrder,
			fmt.Sprintf("order must be one of %s", strings.Join(orders, ", ")))
	}
	switch params.Direction {
	case "", models.DirectionAsc, models.DirectionDesc:
	default:
		return shared.NewValidationError(shared.ErrInvalidDirection, "direction must be asc or desc")
	}
	if params.Limit != nil && *params.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", shared.ErrInvalidArgument)
	}
	if params.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", shared.ErrInvalidArgument)
	}
	return nil
}

// validateStruct runs the struct tags of v and wraps failures into sentinel.
func validateStruct(v any, sentinel error) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", sentinel, err)
	}

	violations := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, describe(fe))
	}
	return shared.NewValidationError(sentinel, violations...)
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
