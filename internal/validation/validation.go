// Package validation holds the acceptance rules for user-submitted data.
// Every check here runs before any remote call is attempted.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ayush/referral-rewards/backend/internal/models"
)

// Violation is one failed constraint on one field.
type Violation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Param      string `json:"param,omitempty"`
}

// Error lists every violation found on an input.
type Error struct {
	Violations []Violation `json:"violations"`
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Param != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", v.Field, v.Constraint, v.Param))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Constraint))
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field failed constraint.
func (e *Error) Has(field, constraint string) bool {
	for _, v := range e.Violations {
		if v.Field == field && v.Constraint == constraint {
			return true
		}
	}
	return false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	mustRegister(v, "hasupper", containsRune(unicode.IsUpper))
	mustRegister(v, "haslower", containsRune(unicode.IsLower))
	mustRegister(v, "hasdigit", containsRune(unicode.IsDigit))
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s: %v", tag, err))
	}
}

// containsRune matches ASCII letters/digits only, like [A-Z], [a-z], [0-9].
func containsRune(class func(rune) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if r < unicode.MaxASCII && class(r) {
				return true
			}
		}
		return false
	}
}

// ValidateUser checks a registration payload.
func ValidateUser(c models.Credentials) error {
	return check(validate.Struct(c))
}

// ValidatePaymentMethod checks a payout destination.
func ValidatePaymentMethod(p models.PaymentMethod) error {
	return check(validate.Struct(p))
}

// ValidateAmount requires a strictly positive amount.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsPositive() {
		return nil
	}
	return &Error{Violations: []Violation{{Field: "amount", Constraint: "gt", Param: "0"}}}
}

// ValidateWithdrawal checks the amount and the payout destination, reporting
// the violations of both.
func ValidateWithdrawal(in models.WithdrawalInput) error {
	var out Error
	for _, err := range []error{ValidateAmount(in.Amount), ValidatePaymentMethod(in.PaymentMethod)} {
		var verr *Error
		switch {
		case errors.As(err, &verr):
			out.Violations = append(out.Violations, verr.Violations...)
		case err != nil:
			return err
		}
	}
	return out.orNil()
}

// ValidateDetails checks an open-ended audit/analytics payload. A nil map is
// fine; keys must be non-empty and the whole payload must encode as JSON.
func ValidateDetails(d models.Details) error {
	var out Error
	for k := range d {
		if strings.TrimSpace(k) == "" {
			out.Violations = append(out.Violations, Violation{Field: "details", Constraint: "emptykey"})
		}
	}
	if _, err := json.Marshal(d); err != nil {
		out.Violations = append(out.Violations, Violation{Field: "details", Constraint: "json"})
	}
	return out.orNil()
}

// ValidateProfileUpdate rejects empty updates and attempts to change the id.
func ValidateProfileUpdate(u models.ProfileUpdate) error {
	var out Error
	if len(u) == 0 {
		out.Violations = append(out.Violations, Violation{Field: "updates", Constraint: "required"})
	}
	for k := range u {
		switch {
		case strings.TrimSpace(k) == "":
			out.Violations = append(out.Violations, Violation{Field: "updates", Constraint: "emptykey"})
		case k == "id" || k == "created_at":
			out.Violations = append(out.Violations, Violation{Field: k, Constraint: "readonly"})
		}
	}
	return out.orNil()
}

func (e *Error) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

func check(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{Violations: make([]Violation, 0, len(verrs))}
	for _, fe := range verrs {
		out.Violations = append(out.Violations, Violation{
			Field:      fe.Field(),
			Constraint: fe.Tag(),
			Param:      fe.Param(),
		})
	}
	return out
}
