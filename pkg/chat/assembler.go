package chat

import (
	"errors"
	"strings"
	"sync"
)

// ErrStaleTurn is returned when a turn touches buffers it no longer owns.
var ErrStaleTurn = errors.New("turn no longer owns the pending buffers")

// MessageAssembler accumulates answer and source segments for the active
// turn and commits the finished assistant message to the conversation.
// Only one turn owns the pending buffers at a time; calls carrying any
// other turn id are ignored.
type MessageAssembler struct {
	mu           sync.RWMutex
	conversation Conversation
	owner        string
	answer       []string
	sources      []string
	observer     func(partial string)
}

// NewMessageAssembler creates an assembler with an empty conversation
func NewMessageAssembler(assistant string) *MessageAssembler {
	return &MessageAssembler{
		conversation: NewConversation(assistant),
	}
}

// SetObserver registers a callback that receives the full partial answer
// after every appended answer segment.
func (a *MessageAssembler) SetObserver(fn func(partial string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observer = fn
}

// Begin hands the pending buffers to turnID, discarding whatever a previous
// turn left behind.
func (a *MessageAssembler) Begin(turnID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.owner = turnID
	a.answer = nil
	a.sources = nil
}

// CommitUser appends a user message to the history.
func (a *MessageAssembler) CommitUser(msg AssembledMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversation = AddMessage(a.conversation, msg)
}

// OnAnswerSegment appends answer text and notifies the observer. It reports
// whether the segment was accepted.
func (a *MessageAssembler) OnAnswerSegment(turnID, text string) bool {
	a.mu.Lock()
	if turnID == "" || turnID != a.owner {
		a.mu.Unlock()
		return false
	}
	a.answer = append(a.answer, text)
	partial := strings.Join(a.answer, "")
	observer := a.observer
	a.mu.Unlock()

	if observer != nil {
		observer(partial)
	}
	return true
}

// OnSourceSegment appends source data. Sources are only meaningful once
// complete, so nobody is notified.
func (a *MessageAssembler) OnSourceSegment(turnID, text string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if turnID == "" || turnID != a.owner {
		return false
	}
	a.sources = append(a.sources, text)
	return true
}

// Finalize commits the assistant message for turnID and releases the
// buffers. When the source block cannot be parsed the answer is still
// committed without sources and the returned error wraps
// ErrMalformedSourceBlock.
func (a *MessageAssembler) Finalize(turnID string) (*AssembledMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if turnID == "" || turnID != a.owner {
		return nil, ErrStaleTurn
	}

	text := strings.Join(a.answer, "")

	var sources []Source
	var parseErr error
	if len(a.sources) > 0 {
		sources, parseErr = ParseSources(strings.Join(a.sources, ""))
	}

	msg := NewAssistantMessage(text, sources)
	a.conversation = AddMessage(a.conversation, msg)
	a.release()

	return &msg, parseErr
}

// Abort discards the pending buffers of turnID without committing. Calling
// it again, or for a turn that does not own the buffers, does nothing.
func (a *MessageAssembler) Abort(turnID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if turnID == "" || turnID != a.owner {
		return
	}
	a.release()
}

// Reset clears history and pending buffers, e.g. on assistant switch.
func (a *MessageAssembler) Reset(assistant string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversation = NewConversation(assistant)
	a.release()
}

func (a *MessageAssembler) release() {
	a.owner = ""
	a.answer = nil
	a.sources = nil
}

// PartialText returns the answer accumulated so far for the active turn.
func (a *MessageAssembler) PartialText() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return strings.Join(a.answer, "")
}

// Pending reports whether a turn currently owns the buffers.
func (a *MessageAssembler) Pending() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.owner != ""
}

func (a *MessageAssembler) Conversation() Conversation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conversation
}

func (a *MessageAssembler) History() []AssembledMessage {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return GetMessages(a.conversation)
}
