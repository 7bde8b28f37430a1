// Package messaging provides an in-memory mock delivery service.
package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/BTreeMap/BreatheCheck/internal/models"
)

// SentMessage records one outbound message captured by the MockService.
type SentMessage struct {
	To   string
	Body string
}

// MockService is an in-memory Service implementation for tests and for
// running without a real transport. Outbound messages are recorded and
// inbound messages can be injected.
type MockService struct {
	mu        sync.Mutex
	sent      []SentMessage
	sendErr   error
	receipts  chan models.Receipt
	responses chan models.Response
}

// NewMockService creates an empty MockService.
func NewMockService() *MockService {
	return &MockService{
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient applies the shared phone-number rules.
func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendMessage records the outbound message, or fails with the configured
// error.
func (m *MockService) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

// Start is a no-op.
func (m *MockService) Start(ctx context.Context) error { return nil }

// Stop is a no-op.
func (m *MockService) Stop() error { return nil }

// Receipts returns the receipt channel.
func (m *MockService) Receipts() <-chan models.Receipt { return m.receipts }

// Responses returns the inbound message channel.
func (m *MockService) Responses() <-chan models.Response { return m.responses }

// InjectResponse queues an inbound message as if it arrived from the
// transport.
func (m *MockService) InjectResponse(from, body string) {
	m.responses <- models.Response{From: from, Body: body, Time: time.Now().Unix()}
}

// Sent returns a copy of the outbound messages recorded so far.
func (m *MockService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// SetSendError makes subsequent SendMessage calls fail with err.
func (m *MockService) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}
