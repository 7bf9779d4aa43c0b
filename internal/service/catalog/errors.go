package catalog

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kirinyoku/tripgo/internal/domain"
)

var ErrDestinationConflict = errors.New("destination with this name already exists")

// ValidationErr turns validator output into a *domain.ValidationError naming
// the first offending field.
func ValidationErr(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(toSnake(fe.Field()), describe(fe))
	}

	return domain.NewValidationError("", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "len":
		return "must be " + fe.Param() + " characters long"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "gtefield":
		return "must not be less than " + toSnake(fe.Param())
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func toSnake(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		prevLower = !upper
		b.WriteRune(r)
	}
	return b.String()
}
