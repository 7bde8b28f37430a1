// Package messaging provides message delivery abstractions and inbound
// response routing for BreatheCheck.
package messaging

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/BTreeMap/BreatheCheck/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the buffer size for receipt and
	// response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel handoffs.
	DefaultChannelTimeout = 1 * time.Second
)

// Service defines a pluggable message delivery abstraction. Implementations
// exist for WhatsApp (whatsmeow) and Twilio, plus an in-memory mock for
// tests.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. Each transport has its own rules for what a
	// valid identifier looks like.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of delivery receipt events.
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming user messages.
	Responses() <-chan models.Response
}

// phoneNumberRegex strips everything that is not a digit from a recipient.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// MinPhoneDigits is the minimum number of digits for a valid phone number.
const MinPhoneDigits = 6

// canonicalizePhone reduces a recipient to bare digits and validates length.
// Both phone-based transports share these rules.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in %q", recipient)
	}
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits)", canonical, MinPhoneDigits)
	}
	return canonical, nil
}
