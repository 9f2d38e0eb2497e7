package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/exceva/property-ledger/internal/shared"
)

// IdempotencyHeader carries the caller's submission key.
const IdempotencyHeader = "Idempotency-Key"

// ActorHeader carries the operator id asserted by the upstream gateway.
const ActorHeader = "X-Actor-ID"

// Int64Param parses a positive integer route parameter.
func Int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError([]string{fmt.Sprintf("%s must be a positive integer", name)})
	}
	return id, nil
}

// DateQuery parses an optional YYYY-MM-DD query parameter.
func DateQuery(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.NewValidationError([]string{fmt.Sprintf("%s must be formatted YYYY-MM-DD", name)})
	}
	return t, nil
}

// Decode reads a JSON body and turns malformed input into a validation error.
func Decode(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return shared.NewValidationError([]string{"malformed request body: " + err.Error()})
	}
	return nil
}

// ValidateStruct runs validator tags and reports every failing field.
func ValidateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		problems = append(problems, describeField(fieldErr))
	}
	return shared.NewValidationError(problems)
}

func describeField(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "gt", "gte", "min":
		return field + " must be at least " + fe.Param()
	case "lte", "max":
		return field + " must be at most " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// Expected reports whether err is a caller-facing error that needs no
// server-side logging.
func Expected(err error) bool {
	return errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrInvalidState) ||
		errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrIdempotencyConflict) ||
		errors.Is(err, shared.ErrLockHeld)
}
