package order

import (
	"net/mail"
	"strings"
	"unicode"
)

// ContactError names the first contact or delivery field that failed.
type ContactError struct {
	Field   string
	Message string
}

func (e *ContactError) Error() string { return e.Message }

func (e *ContactError) Unwrap() error { return ErrInvalidRequest }

// ValidateContact checks the customer and delivery fields needed to place an order.
func ValidateContact(c Customer, a Address) error {
	required := []struct {
		field, value, msg string
	}{
		{"firstName", c.FirstName, "First name is required"},
		{"lastName", c.LastName, "Last name is required"},
		{"email", c.Email, "Email is required"},
		{"phone", c.Phone, "Phone number is required"},
		{"street", a.Street, "Street address is required"},
		{"city", a.City, "City is required"},
		{"postalCode", a.PostalCode, "Postal code is required"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ContactError{Field: r.field, Message: r.msg}
		}
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(c.Email))
	if err != nil || addr.Name != "" {
		return &ContactError{Field: "email", Message: "Enter a valid email address"}
	}
	if !validPhone(c.Phone) {
		return &ContactError{Field: "phone", Message: "Enter a valid phone number"}
	}
	return nil
}

func validPhone(phone string) bool {
	digits := 0
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 10 && digits <= 15
}
