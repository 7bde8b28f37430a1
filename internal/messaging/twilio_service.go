// Package messaging provides the Twilio-backed delivery service.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/BTreeMap/BreatheCheck/internal/models"
)

// TwilioOpts holds configuration options for the Twilio service.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string // WhatsApp sender in "whatsapp:+1234567890" form
}

// TwilioOption defines a configuration option for the Twilio service.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFrom sets the Twilio WhatsApp sender number.
func WithFrom(from string) TwilioOption {
	return func(o *TwilioOpts) { o.From = from }
}

// TwilioService implements Service using the Twilio REST API for outbound
// messages. Inbound messages arrive over the Twilio webhook, which the API
// server feeds in through HandleIncoming.
type TwilioService struct {
	client    *twilio.RestClient
	from      string
	receipts  chan models.Receipt
	responses chan models.Response
	done      chan struct{}
	mu        sync.Mutex
	stopped   bool
}

// NewTwilioService creates a Twilio-backed messaging service.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token are required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("twilio sender number is required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	slog.Debug("Twilio service created", "from", cfg.From)
	return &TwilioService{
		client:    client,
		from:      cfg.From,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}, nil
}

// ValidateAndCanonicalizeRecipient strips non-digits and validates length.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendMessage sends a WhatsApp message through the Twilio REST API and emits
// a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(fmt.Sprintf("whatsapp:+%s", to))
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService SendMessage failed", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	s.emitReceipt(models.Receipt{To: to, Status: models.StatusSent, Time: time.Now().Unix()})
	slog.Debug("TwilioService message sent", "to", to, "body_length", len(body))
	return nil
}

// HandleIncoming feeds an inbound webhook message into the response channel.
// The handoff is non-blocking with a timeout so a stalled consumer cannot
// wedge the webhook.
func (s *TwilioService) HandleIncoming(from, body string) error {
	response := models.Response{From: from, Body: body, Time: time.Now().Unix()}
	select {
	case s.responses <- response:
		slog.Debug("TwilioService queued inbound message", "from", from, "body_length", len(body))
		return nil
	case <-s.done:
		return fmt.Errorf("twilio service stopped")
	case <-time.After(DefaultChannelTimeout):
		slog.Error("TwilioService dropped inbound message, response channel full", "from", from)
		return fmt.Errorf("response channel full")
	}
}

// Start is a no-op: Twilio inbound traffic arrives over the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channels.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.receipts)
	close(s.responses)
	slog.Debug("TwilioService stopped")
	return nil
}

// Receipts returns the delivery receipt channel.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the inbound message channel.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

func (s *TwilioService) emitReceipt(r models.Receipt) {
	select {
	case s.receipts <- r:
	default:
		slog.Warn("TwilioService receipt channel full, dropping receipt", "to", r.To)
	}
}
