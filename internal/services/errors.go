package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/gitshopapp/storefront/internal/db"
)

var (
	ErrOrderNotFound             = errors.New("order not found")
	ErrOrderStatusConflict       = errors.New("order status conflict")
	ErrOrderVersionConflict      = errors.New("order version conflict")
	ErrOrderForbidden            = errors.New("order belongs to another customer")
	ErrPaymentGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrCheckoutFailed            = errors.New("checkout failed")
)

// ValidationError reports one invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field of a request.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fieldErr := range e {
		parts = append(parts, fieldErr.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e ValidationErrors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// orderStoreError maps store failures onto the service taxonomy while keeping
// the original error in the chain.
func orderStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
	case errors.Is(err, db.ErrInvalidStatusTransition):
		return fmt.Errorf("%w: %w", ErrOrderStatusConflict, err)
	case errors.Is(err, db.ErrVersionConflict):
		return fmt.Errorf("%w: %w", ErrOrderVersionConflict, err)
	default:
		return err
	}
}
