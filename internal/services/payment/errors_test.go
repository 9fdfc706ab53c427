package payment

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v78"
)

func TestFriendlyMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "generic decline",
			err:  &stripe.Error{Code: "card_declined"},
			want: "Your card was declined.",
		},
		{
			name: "insufficient funds",
			err:  &stripe.Error{Code: "card_declined", DeclineCode: "insufficient_funds"},
			want: "Your card has insufficient funds.",
		},
		{
			name: "expired card",
			err:  &stripe.Error{Code: "expired_card"},
			want: "Your card has expired.",
		},
		{
			name: "bad cvc",
			err:  &stripe.Error{Code: "incorrect_cvc"},
			want: "Your card's security code is incorrect.",
		},
		{
			name: "bad number",
			err:  &stripe.Error{Code: "incorrect_number"},
			want: "Your card number is invalid.",
		},
		{
			name: "bad expiry",
			err:  &stripe.Error{Code: "invalid_expiry_year"},
			want: "Your card's expiration date is invalid.",
		},
		{
			name: "processing error",
			err:  &stripe.Error{Code: "processing_error"},
			want: "An error occurred while processing your card. Please try again.",
		},
		{
			name: "non-gateway error",
			err:  errors.New("connection reset"),
			want: "Payment could not be processed. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FriendlyMessage(tt.err); got != tt.want {
				t.Errorf("FriendlyMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"20.63", 2063},
		{"9.7", 970},
		{"0.00", 0},
		{"100", 10000},
	}

	for _, tt := range tests {
		amt := decimal.RequireFromString(tt.amount)
		if got := MinorUnits(amt); got != tt.want {
			t.Errorf("MinorUnits(%s) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}
