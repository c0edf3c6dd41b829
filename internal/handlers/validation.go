package handlers

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
)

// paymentReferencePattern is PREFIX-YYYYMMDD-NNNN.
var paymentReferencePattern = regexp.MustCompile(`^[A-Z0-9]{2,10}-\d{8}-\d{4}$`)

type cartItemRequest struct {
	ID       uuid.UUID `json:"id" validate:"required"`
	Quantity int       `json:"quantity" validate:"min=1"`
	// Price is what the client displayed. The server prices from the catalog.
	Price *float64 `json:"price,omitempty"`
}

type checkoutRequest struct {
	Name          string            `json:"name" validate:"required"`
	Email         string            `json:"email" validate:"required,email"`
	City          string            `json:"city" validate:"required"`
	PostalCode    string            `json:"postalCode" validate:"required"`
	StreetAddress string            `json:"streetAddress" validate:"required"`
	Country       string            `json:"country" validate:"required"`
	CartItems     []cartItemRequest `json:"cartItems" validate:"required,min=1,dive"`
	DeliveryType  string            `json:"deliveryType,omitempty"`
}

type offlineCheckoutRequest struct {
	checkoutRequest
	PaymentProofURL  string     `json:"paymentProofUrl" validate:"required,uri"`
	PaymentReference string     `json:"paymentReference" validate:"required,payment_reference"`
	PaymentDate      *time.Time `json:"paymentDate,omitempty"`
}

type updateOrderRequest struct {
	OrderID         uuid.UUID `json:"orderId" validate:"required"`
	ConfirmPayment  bool      `json:"confirmPayment,omitempty"`
	RejectPayment   bool      `json:"rejectPayment,omitempty"`
	RejectionReason string    `json:"rejectionReason,omitempty" validate:"required_if=RejectPayment true"`
	ExpectedVersion int       `json:"expectedVersion,omitempty" validate:"gte=0"`
}

type deleteOrderRequest struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

type resubmitProofRequest struct {
	PaymentProofURL string `json:"paymentProofUrl" validate:"required,uri"`
}

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// RegisterValidation only fails for an empty tag or a nil func.
	_ = v.RegisterValidation("payment_reference", func(fl validator.FieldLevel) bool {
		return paymentReferencePattern.MatchString(fl.Field().String())
	})
	return v
}

// validateRequest runs struct validation and converts failures to the service
// validation taxonomy so every 400 has the same body shape.
func (h *Handlers) validateRequest(req any) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(services.ValidationErrors, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		out = append(out, services.ValidationError{
			Field:   requestFieldPath(fieldErr),
			Message: validationMessage(fieldErr),
		})
	}
	return out
}

// requestFieldPath strips the root struct name and embedded request structs
// from the namespace, leaving paths such as cartItems[0].quantity.
func requestFieldPath(fieldErr validator.FieldError) string {
	namespace := fieldErr.Namespace()
	_, rest, ok := strings.Cut(namespace, ".")
	if !ok {
		return fieldErr.Field()
	}
	return strings.TrimPrefix(rest, "checkoutRequest.")
}

func validationMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required", "required_if":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uri":
		return "must be a valid URI"
	case "min":
		if fieldErr.Kind() == reflect.Slice {
			return "must contain at least " + fieldErr.Param() + " item"
		}
		return "must be at least " + fieldErr.Param()
	case "gte":
		return "must be at least " + fieldErr.Param()
	case "payment_reference":
		return "must look like PREFIX-YYYYMMDD-NNNN"
	default:
		return "is invalid"
	}
}

func (req checkoutRequest) toInput(userID string) services.CheckoutInput {
	items := make([]catalog.CartItem, 0, len(req.CartItems))
	for _, item := range req.CartItems {
		items = append(items, catalog.CartItem{ProductID: item.ID, Quantity: item.Quantity})
	}
	return services.CheckoutInput{
		UserID: userID,
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.TrimSpace(req.Email),
		ShippingAddress: models.ShippingAddress{
			City:          strings.TrimSpace(req.City),
			PostalCode:    strings.TrimSpace(req.PostalCode),
			StreetAddress: strings.TrimSpace(req.StreetAddress),
			Country:       strings.TrimSpace(req.Country),
		},
		Items:        items,
		DeliveryType: strings.TrimSpace(req.DeliveryType),
	}
}
