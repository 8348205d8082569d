package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ayush/referral-rewards/backend/internal/models"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestValidateUser(t *testing.T) {
	valid := models.Credentials{Email: "jane@example.com", Password: "Abcdefg1", FullName: "Jo"}

	cases := []struct {
		name       string
		mutate     func(c *models.Credentials)
		field      string
		constraint string
	}{
		{"valid", func(*models.Credentials) {}, "", ""},
		{"no uppercase", func(c *models.Credentials) { c.Password = "abcdefg1" }, "password", "hasupper"},
		{"no lowercase", func(c *models.Credentials) { c.Password = "ABCDEFG1" }, "password", "haslower"},
		{"no digit", func(c *models.Credentials) { c.Password = "Abcdefgh" }, "password", "hasdigit"},
		{"too short", func(c *models.Credentials) { c.Password = "Abcde1" }, "password", "min"},
		{"bad email", func(c *models.Credentials) { c.Email = "jane.example.com" }, "email", "email"},
		{"empty email", func(c *models.Credentials) { c.Email = "" }, "email", "email"},
		{"short name", func(c *models.Credentials) { c.FullName = "J" }, "full_name", "min"},
		{"two rune name", func(c *models.Credentials) { c.FullName = "Żó" }, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			err := ValidateUser(c)
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if !verr.Has(tc.field, tc.constraint) {
				t.Fatalf("expected %s/%s violation, got %+v", tc.field, tc.constraint, verr.Violations)
			}
		})
	}
}

func TestValidateUser_ReportsEveryField(t *testing.T) {
	err := ValidateUser(models.Credentials{Email: "nope", Password: "short", FullName: ""})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	for _, field := range []string{"email", "password", "full_name"} {
		found := false
		for _, v := range verr.Violations {
			if v.Field == field {
				found = true
			}
		}
		if !found {
			t.Errorf("expected violation on %s, got %+v", field, verr.Violations)
		}
	}
}

func TestValidatePaymentMethod(t *testing.T) {
	cases := []struct {
		name       string
		pm         models.PaymentMethod
		field      string
		constraint string
	}{
		{"card minimal", models.PaymentMethod{Type: "card", Last4: "4242"}, "", ""},
		{"bank with name", models.PaymentMethod{Type: "bank", Last4: "0001", BankName: strPtr("Chase")}, "", ""},
		{"card with expiry", models.PaymentMethod{Type: "card", Last4: "4242", ExpiryMonth: intPtr(12), ExpiryYear: intPtr(2024)}, "", ""},
		{"paypal", models.PaymentMethod{Type: "paypal", Last4: "4242"}, "type", "oneof"},
		{"empty type", models.PaymentMethod{Last4: "4242"}, "type", "oneof"},
		{"last4 short", models.PaymentMethod{Type: "card", Last4: "424"}, "last4", "len"},
		{"last4 long", models.PaymentMethod{Type: "card", Last4: "42424"}, "last4", "len"},
		{"month zero", models.PaymentMethod{Type: "card", Last4: "4242", ExpiryMonth: intPtr(0)}, "expiry_month", "min"},
		{"month 13", models.PaymentMethod{Type: "card", Last4: "4242", ExpiryMonth: intPtr(13)}, "expiry_month", "max"},
		{"year 2023", models.PaymentMethod{Type: "card", Last4: "4242", ExpiryYear: intPtr(2023)}, "expiry_year", "min"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePaymentMethod(tc.pm)
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if !verr.Has(tc.field, tc.constraint) {
				t.Fatalf("expected %s/%s violation, got %+v", tc.field, tc.constraint, verr.Violations)
			}
		})
	}
}

func TestValidateWithdrawal(t *testing.T) {
	card := models.PaymentMethod{Type: "card", Last4: "4242"}

	if err := ValidateWithdrawal(models.WithdrawalInput{Amount: decimal.RequireFromString("0.01"), PaymentMethod: card}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for _, amount := range []string{"0", "-1.50"} {
		err := ValidateWithdrawal(models.WithdrawalInput{Amount: decimal.RequireFromString(amount), PaymentMethod: card})
		var verr *Error
		if !errors.As(err, &verr) || !verr.Has("amount", "gt") {
			t.Errorf("amount %s: expected amount/gt, got %v", amount, err)
		}
	}

	err := ValidateWithdrawal(models.WithdrawalInput{Amount: decimal.Zero, PaymentMethod: models.PaymentMethod{Type: "cash"}})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !verr.Has("amount", "gt") || !verr.Has("type", "oneof") || !verr.Has("last4", "len") {
		t.Errorf("expected violations on every field, got %+v", verr.Violations)
	}
}

func TestValidateDetails(t *testing.T) {
	if err := ValidateDetails(nil); err != nil {
		t.Fatalf("nil details should pass, got %v", err)
	}
	if err := ValidateDetails(models.Details{"amount": 10, "method": "card"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	err := ValidateDetails(models.Details{"": 1, "ch": make(chan int)})
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !verr.Has("details", "emptykey") || !verr.Has("details", "json") {
		t.Fatalf("unexpected violations %+v", verr.Violations)
	}
}

func TestValidateProfileUpdate(t *testing.T) {
	if err := ValidateProfileUpdate(models.ProfileUpdate{"full_name": "Jane"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var verr *Error
	if err := ValidateProfileUpdate(nil); !errors.As(err, &verr) || !verr.Has("updates", "required") {
		t.Fatalf("expected required violation, got %v", err)
	}
	if err := ValidateProfileUpdate(models.ProfileUpdate{"id": "other"}); !errors.As(err, &verr) || !verr.Has("id", "readonly") {
		t.Fatalf("expected readonly violation, got %v", err)
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Violations: []Violation{{Field: "last4", Constraint: "len", Param: "4"}}}
	if got, want := err.Error(), "validation failed: last4: len=4"; got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}
