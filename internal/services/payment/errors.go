package payment

import (
	"errors"

	stripe "github.com/stripe/stripe-go/v78"
)

// FriendlyMessage translates a processor error into a small stable
// vocabulary of user-presentable reasons. Raw card data and processor
// internals never reach the caller; the full error stays in server logs.
func FriendlyMessage(err error) string {
	var sErr *stripe.Error
	if !errors.As(err, &sErr) {
		return "Payment could not be processed. Please try again."
	}

	switch string(sErr.Code) {
	case "card_declined":
		if string(sErr.DeclineCode) == "insufficient_funds" {
			return "Your card has insufficient funds."
		}
		return "Your card was declined."
	case "expired_card":
		return "Your card has expired."
	case "incorrect_cvc", "invalid_cvc":
		return "Your card's security code is incorrect."
	case "incorrect_number", "invalid_number":
		return "Your card number is invalid."
	case "invalid_expiry_month", "invalid_expiry_year":
		return "Your card's expiration date is invalid."
	case "processing_error":
		return "An error occurred while processing your card. Please try again."
	default:
		return "Payment could not be processed. Please try again."
	}
}
