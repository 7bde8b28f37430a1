// Package messaging provides response handling for the assessment flow.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/BreatheCheck/internal/models"
)

// TurnFunc processes one conversational turn for a user and returns the
// reply to deliver. The assessment engine satisfies this signature.
type TurnFunc func(ctx context.Context, userID, text string) (models.Reply, error)

// turnFailureMessage is sent when a turn fails terminally (e.g. the session
// store is unreachable). The user always hears back.
const turnFailureMessage = "We hit a problem processing your message. Please try again in a moment."

// ResponseHandler routes inbound messages into the assessment engine and
// delivers the replies. Messages from one canonicalized user ID are queued
// FIFO and drained by a single worker, so same-user messages apply in arrival
// order; different users' workers run concurrently.
type ResponseHandler struct {
	msgService Service
	turn       TurnFunc

	mu         sync.Mutex
	userLocks  map[string]*sync.Mutex
	userQueues map[string]chan models.Response
	wg         sync.WaitGroup
}

// NewResponseHandler creates a ResponseHandler that feeds inbound messages
// from the service into the given turn function.
func NewResponseHandler(msgService Service, turn TurnFunc) *ResponseHandler {
	return &ResponseHandler{
		msgService: msgService,
		turn:       turn,
		userLocks:  make(map[string]*sync.Mutex),
		userQueues: make(map[string]chan models.Response),
	}
}

// Start consumes the service's response channel until the context is
// cancelled or the channel closes, routing each message to its sender's
// FIFO queue.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Debug("ResponseHandler starting response loop")
	rh.wg.Add(1)
	go func() {
		defer rh.wg.Done()
		defer rh.closeQueues()
		for {
			select {
			case <-ctx.Done():
				slog.Debug("ResponseHandler response loop stopped", "reason", ctx.Err())
				return
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler response channel closed")
					return
				}
				rh.dispatch(ctx, response)
			}
		}
	}()
}

// dispatch canonicalizes the sender and enqueues the message on that user's
// queue. Enqueueing happens on the single response-loop goroutine, which is
// what makes per-user arrival order a queue property rather than a race.
func (rh *ResponseHandler) dispatch(ctx context.Context, response models.Response) {
	from, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler rejected sender", "error", err, "from", response.From)
		return
	}
	response.From = from

	select {
	case rh.queueFor(ctx, from) <- response:
	case <-ctx.Done():
		slog.Debug("ResponseHandler dropped message during shutdown", "from", from)
	}
}

// queueFor returns the FIFO queue for a canonicalized user ID, starting its
// worker on first use.
func (rh *ResponseHandler) queueFor(ctx context.Context, userID string) chan models.Response {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	queue, ok := rh.userQueues[userID]
	if !ok {
		queue = make(chan models.Response, DefaultChannelBufferSize)
		rh.userQueues[userID] = queue
		rh.wg.Add(1)
		go func() {
			defer rh.wg.Done()
			for response := range queue {
				rh.processTurn(ctx, response.From, response.Body)
			}
		}()
	}
	return queue
}

// closeQueues closes every user queue so the workers drain and exit. Called
// once, after the response loop has stopped enqueueing.
func (rh *ResponseHandler) closeQueues() {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	for _, queue := range rh.userQueues {
		close(queue)
	}
	rh.userQueues = make(map[string]chan models.Response)
}

// Wait blocks until all in-flight turns have finished. Used on shutdown and
// in tests.
func (rh *ResponseHandler) Wait() {
	rh.wg.Wait()
}

// ProcessResponse runs one inbound message through the turn function under
// the sender's lock and sends the reply back. Callers needing same-user
// ordering go through Start's queues instead.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) {
	from, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler rejected sender", "error", err, "from", response.From)
		return
	}
	rh.processTurn(ctx, from, response.Body)
}

// processTurn executes one turn for an already-canonicalized user and
// delivers the reply, or a failure notice when the turn errors.
func (rh *ResponseHandler) processTurn(ctx context.Context, from, body string) {
	slog.Debug("ResponseHandler processing response", "from", from, "body_length", len(body))
	reply, err := rh.RunTurn(ctx, from, body)
	if err != nil {
		slog.Error("ResponseHandler turn failed", "error", err, "from", from)
		if sendErr := rh.msgService.SendMessage(ctx, from, turnFailureMessage); sendErr != nil {
			slog.Error("ResponseHandler failed to send failure notice", "error", sendErr, "from", from)
		}
		return
	}

	if err := rh.msgService.SendMessage(ctx, from, FormatReply(reply)); err != nil {
		slog.Error("ResponseHandler failed to send reply", "error", err, "from", from)
		return
	}
	slog.Info("ResponseHandler turn completed", "from", from, "choices", len(reply.Choices))
}

// RunTurn executes one turn under the user's serialization lock: a second
// message from the same user waits for the first turn's read-modify-write to
// finish. Turns for different users proceed concurrently.
func (rh *ResponseHandler) RunTurn(ctx context.Context, userID, text string) (models.Reply, error) {
	lock := rh.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()
	return rh.turn(ctx, userID, text)
}

// lockFor returns the serialization lock for a canonicalized user ID,
// creating it on first use.
func (rh *ResponseHandler) lockFor(userID string) *sync.Mutex {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	lock, ok := rh.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		rh.userLocks[userID] = lock
	}
	return lock
}

// FormatReply renders a Reply as a single text message, appending the choice
// list as bullet lines for transports without native quick replies.
func FormatReply(reply models.Reply) string {
	if len(reply.Choices) == 0 {
		return reply.Body
	}
	var b strings.Builder
	b.WriteString(reply.Body)
	for _, choice := range reply.Choices {
		fmt.Fprintf(&b, "\n• %s", choice.Label)
	}
	return b.String()
}
