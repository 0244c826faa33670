package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Payment methods accepted at checkout.
const (
	PaymentBankTransfer = "bank_transfer"
	PaymentCOD          = "cod"
)

// customerValidate reports json field names and knows the "phone" rule.
var customerValidate = newCustomerValidator()

func newCustomerValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("phone", validPhone); err != nil {
		panic(fmt.Sprintf("register phone validation: %v", err))
	}
	return v
}

// validPhone accepts an optional leading + and 9 to 15 digits, with spaces,
// dots or dashes between groups.
func validPhone(fl validator.FieldLevel) bool {
	s := strings.TrimPrefix(fl.Field().String(), "+")
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case (r == ' ' || r == '.' || r == '-') && i > 0 && i < len(s)-1:
		default:
			return false
		}
	}
	return digits >= 9 && digits <= 15
}

// Customer is the contact and delivery information entered at checkout.
type Customer struct {
	Name          string `json:"name" validate:"required,max=128"`
	Email         string `json:"email" validate:"required,max=255,email"`
	Phone         string `json:"phone" validate:"required,phone"`
	CompanyName   string `json:"company_name" validate:"max=255"`
	TaxCode       string `json:"tax_code" validate:"max=32"`
	Address       string `json:"address" validate:"required,max=1000"`
	City          string `json:"city" validate:"max=128"`
	Notes         string `json:"notes" validate:"max=2000"`
	PaymentMethod string `json:"payment_method" validate:"oneof=bank_transfer cod"`
}

// ValidationError maps field names to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid customer: " + strings.Join(parts, "; ")
}

// Normalize trims every field, lowercases the email and defaults the payment method.
func (c Customer) Normalize() Customer {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	c.CompanyName = strings.TrimSpace(c.CompanyName)
	c.TaxCode = strings.TrimSpace(c.TaxCode)
	c.Address = strings.TrimSpace(c.Address)
	c.City = strings.TrimSpace(c.City)
	c.Notes = strings.TrimSpace(c.Notes)
	c.PaymentMethod = strings.TrimSpace(c.PaymentMethod)
	if c.PaymentMethod == "" {
		c.PaymentMethod = PaymentBankTransfer
	}
	return c
}

// Validate expects a normalized customer.
func (c Customer) Validate() error {
	err := customerValidate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate customer: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = customerMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func customerMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must be a valid phone number"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
