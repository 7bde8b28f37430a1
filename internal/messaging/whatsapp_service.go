// Package messaging provides the whatsmeow-backed delivery service.
package messaging

import (
	"context"
	"log/slog"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/BreatheCheck/internal/models"
	"github.com/BTreeMap/BreatheCheck/internal/whatsapp"
)

// WhatsAppService implements Service using the whatsmeow-based whatsapp
// client.
type WhatsAppService struct {
	client    whatsapp.Sender
	waClient  *whatsapp.Client // full client for event registration, nil when mocked
	receipts  chan models.Receipt
	responses chan models.Response
	done      chan struct{}
}

// NewWhatsAppService creates a WhatsAppService wrapping the given Sender.
// When the Sender is a full whatsapp.Client, incoming message and receipt
// events are forwarded onto the service channels.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:    client,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
	} else {
		slog.Debug("WhatsAppService created with mock sender, event handling disabled")
	}
	return service
}

// ValidateAndCanonicalizeRecipient strips non-digits and validates length,
// matching the WhatsApp JID user format.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	// Same phone-number rules as the Twilio transport.
	return canonicalizePhone(recipient)
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService SendMessage failed", "error", err, "to", to)
		return err
	}
	select {
	case s.receipts <- models.Receipt{To: to, Status: models.StatusSent, Time: time.Now().Unix()}:
	default:
		slog.Warn("WhatsAppService receipt channel full, dropping receipt", "to", to)
	}
	return nil
}

// Start registers the whatsmeow event handler when a full client is present.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService Start: no full client, skipping event handling")
		return nil
	}
	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Receipt:
			s.handleMessageReceipt(v)
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop closes the event channels.
func (s *WhatsAppService) Stop() error {
	close(s.done)
	close(s.receipts)
	close(s.responses)
	slog.Debug("WhatsAppService stopped")
	return nil
}

// Receipts returns the delivery receipt channel.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the inbound message channel.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}

// handleIncomingMessage forwards incoming text messages onto the response
// channel. Non-text messages are ignored.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	response := models.Response{
		From: evt.Info.Sender.User,
		Body: text,
		Time: evt.Info.Timestamp.Unix(),
	}
	select {
	case s.responses <- response:
		slog.Debug("WhatsAppService forwarded incoming message", "from", response.From, "body_length", len(response.Body))
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService response channel blocked, dropping message", "from", response.From)
	}
}

// handleMessageReceipt forwards delivery and read receipts.
func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	var status string
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.StatusDelivered
	case events.ReceiptTypeRead:
		status = models.StatusRead
	default:
		return
	}

	receipt := models.Receipt{
		To:     evt.MessageSource.Sender.User,
		Status: status,
		Time:   evt.Timestamp.Unix(),
	}
	select {
	case s.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService receipt channel blocked, dropping receipt", "to", receipt.To)
	}
}
