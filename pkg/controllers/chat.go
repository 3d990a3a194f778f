package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/killallgit/composer/pkg/assistants"
	"github.com/killallgit/composer/pkg/cancel"
	"github.com/killallgit/composer/pkg/chat"
	"github.com/killallgit/composer/pkg/classify"
	"github.com/killallgit/composer/pkg/logger"
	"github.com/killallgit/composer/pkg/metrics"
	"github.com/killallgit/composer/pkg/stream"
)

var ErrEmptyMessage = errors.New("message content cannot be empty")

// Streamer opens the response stream of one chat turn. Cancelling ctx
// must abort the underlying connection.
type Streamer interface {
	Stream(ctx context.Context, req chat.ChatRequest) (io.ReadCloser, error)
}

// Turn is the result of SendMessage. A cancelled turn carries no message.
type Turn struct {
	Message   *chat.AssembledMessage
	Sources   []chat.Source
	Cancelled bool
}

// ChatController runs chat turns against one assistant, one at a time.
type ChatController struct {
	streamer   Streamer
	assembler  *chat.MessageAssembler
	cancels    *cancel.Controller
	classifier *classify.Classifier
	metrics    *metrics.Metrics
	limits     chat.AttachmentLimits
	framing    stream.FramingMode
	readSize   int

	cancelOpts []cancel.Option

	mu        sync.RWMutex
	assistant assistants.Assistant
	handler   stream.Handler
	lastErr   *classify.Error
}

type Option func(*ChatController)

// WithTurnTimeout bounds the duration of every turn.
func WithTurnTimeout(d time.Duration) Option {
	return func(c *ChatController) {
		c.cancelOpts = append(c.cancelOpts, cancel.WithTurnTimeout(d))
	}
}

func WithClassifier(cl *classify.Classifier) Option {
	return func(c *ChatController) {
		c.classifier = cl
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ChatController) {
		c.metrics = m
	}
}

func WithAttachmentLimits(limits chat.AttachmentLimits) Option {
	return func(c *ChatController) {
		c.limits = limits
	}
}

func WithFramingMode(mode stream.FramingMode) Option {
	return func(c *ChatController) {
		c.framing = mode
	}
}

// WithReadSize sets how many bytes are read from the stream at a time.
func WithReadSize(n int) Option {
	return func(c *ChatController) {
		c.readSize = n
	}
}

func WithHandler(h stream.Handler) Option {
	return func(c *ChatController) {
		c.handler = h
	}
}

func NewChatController(streamer Streamer, assistant assistants.Assistant, opts ...Option) *ChatController {
	c := &ChatController{
		streamer:  streamer,
		assembler: chat.NewMessageAssembler(assistant.Name),
		limits:    chat.DefaultAttachmentLimits(),
		framing:   stream.FramingAccumulate,
		assistant: assistant,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.classifier == nil {
		c.classifier = classify.New()
	}
	c.cancels = cancel.NewController(c.cancelOpts...)
	return c
}

// SendMessage runs one turn to completion. Any turn already in flight is
// superseded first. A cancelled turn returns a Turn with Cancelled set and
// a nil error; a visible failure returns a *classify.Error. When the
// answer arrives but its sources cannot be parsed, both the Turn and the
// error are returned.
func (c *ChatController) SendMessage(ctx context.Context, text string, attachments []chat.Attachment) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.RLock()
	assistant := c.assistant
	handler := c.handler
	c.mu.RUnlock()
	label := assistant.Label()

	if err := chat.ValidateAttachments(attachments, c.limits); err != nil {
		if classified := c.report(nil, handler, err, label); classified != nil {
			return nil, classified
		}
		return nil, err
	}

	tok := c.cancels.Start(ctx)
	defer c.cancels.Done(tok)

	c.assembler.Begin(tok.ID())
	c.assembler.CommitUser(chat.NewUserMessage(text, attachments))
	c.DismissError()

	log := logger.WithComponent("chat_controller").With("turn_id", tok.ID(), "assistant", assistant.Name)
	log.Debug("Turn started", "attachments", len(attachments))

	start := time.Now()
	c.metrics.TurnStarted()

	turn, err := c.run(tok, handler, chat.ChatRequest{
		AssistantName: assistant.Name,
		Text:          text,
		Attachments:   attachments,
	}, label)

	outcome := metrics.OutcomeCompleted
	switch {
	case turn != nil && turn.Cancelled:
		outcome = metrics.OutcomeCancelled
	case turn == nil:
		outcome = metrics.OutcomeFailed
	}
	c.metrics.TurnFinished(outcome, start)
	log.Debug("Turn finished", "outcome", outcome, "duration", time.Since(start))

	return turn, err
}

func (c *ChatController) run(tok *cancel.Token, handler stream.Handler, req chat.ChatRequest, label string) (*Turn, error) {
	body, err := c.streamer.Stream(tok.Context(), req)
	if err != nil {
		return c.fail(tok, handler, err, label)
	}
	defer body.Close()

	dec := stream.NewDecoder(body, c.readSize)
	parser := stream.NewFrameParser(c.framing)

	for {
		chunk, err := dec.Next()
		if tok.Inert() {
			return c.cancelled(tok)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return c.fail(tok, handler, err, label)
		}
		c.metrics.StreamBytes(len(chunk))

		for _, seg := range parser.Feed(chunk) {
			if seg.IsSource() {
				c.assembler.OnSourceSegment(tok.ID(), seg.Text)
				continue
			}
			if !c.assembler.OnAnswerSegment(tok.ID(), seg.Text) {
				return c.cancelled(tok)
			}
			if handler != nil {
				if err := handler.OnChunk([]byte(seg.Text)); err != nil {
					return c.fail(tok, handler, fmt.Errorf("stream handler failed: %w", err), label)
				}
			}
		}
	}

	if tok.Inert() {
		return c.cancelled(tok)
	}
	msg, err := c.assembler.Finalize(tok.ID())
	if errors.Is(err, chat.ErrStaleTurn) {
		return c.cancelled(tok)
	}

	turn := &Turn{Message: msg, Sources: msg.Sources}
	if handler != nil {
		if herr := handler.OnComplete(msg.Text); herr != nil {
			logger.WithComponent("chat_controller").Warn("Stream handler failed on completion", "error", herr)
		}
	}
	if err != nil {
		if classified := c.report(tok, handler, err, label); classified != nil {
			return turn, classified
		}
	}
	return turn, nil
}

// fail aborts the turn and classifies err. The token's cancellation cause
// takes precedence over the transport error it produced.
func (c *ChatController) fail(tok *cancel.Token, handler stream.Handler, err error, label string) (*Turn, error) {
	if tok.Inert() {
		return c.cancelled(tok)
	}
	c.assembler.Abort(tok.ID())

	if cause := tok.Cause(); cause != nil {
		err = fmt.Errorf("%w: %w", cause, err)
	}

	classified := c.report(tok, handler, err, label)
	if classified == nil {
		return &Turn{Cancelled: true}, nil
	}
	return nil, classified
}

func (c *ChatController) cancelled(tok *cancel.Token) (*Turn, error) {
	c.assembler.Abort(tok.ID())
	logger.WithComponent("chat_controller").Debug("Turn cancelled", "turn_id", tok.ID(), "cause", tok.Cause())
	return &Turn{Cancelled: true}, nil
}

// report classifies err and publishes it as the current notification. It
// returns nil when err must stay silent or tok has gone inert.
func (c *ChatController) report(tok *cancel.Token, handler stream.Handler, err error, label string) *classify.Error {
	classified := c.classifier.Classify(err, label)
	if classified == nil {
		return nil
	}

	c.mu.Lock()
	if tok != nil && tok.Inert() {
		c.mu.Unlock()
		return nil
	}
	c.lastErr = classified
	c.mu.Unlock()

	c.metrics.Error(string(classified.Kind))
	logger.WithComponent("chat_controller").Warn("Turn failed",
		"kind", classified.Kind,
		"status_code", classified.Status,
		"error", err,
	)
	if handler != nil {
		handler.OnError(classified)
	}
	return classified
}

// Stop cancels the turn in flight, if any. The stopped turn commits
// nothing and reports no error.
func (c *ChatController) Stop() bool {
	tok := c.cancels.Stop()
	if tok == nil {
		return false
	}
	c.assembler.Abort(tok.ID())
	return true
}

// SwitchAssistant abandons the current conversation and starts a fresh one
// with assistant.
func (c *ChatController) SwitchAssistant(assistant assistants.Assistant) {
	if tok := c.cancels.Reset(); tok != nil {
		c.assembler.Abort(tok.ID())
	}

	c.mu.Lock()
	c.assistant = assistant
	c.lastErr = nil
	c.mu.Unlock()

	c.assembler.Reset(assistant.Name)
}

// PartialText returns the answer text streamed so far in the current turn.
func (c *ChatController) PartialText() string {
	return c.assembler.PartialText()
}

// OnPartial registers fn to receive the full partial answer on every update.
func (c *ChatController) OnPartial(fn func(partial string)) {
	c.assembler.SetObserver(fn)
}

func (c *ChatController) SetHandler(h stream.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *ChatController) Busy() bool {
	return c.cancels.Busy()
}

// LastError returns the current dismissible notification, or nil.
func (c *ChatController) LastError() *classify.Error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *ChatController) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

func (c *ChatController) Assistant() assistants.Assistant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.assistant
}

func (c *ChatController) GetHistory() []chat.AssembledMessage {
	return c.assembler.History()
}

func (c *ChatController) GetConversation() chat.Conversation {
	return c.assembler.Conversation()
}

func (c *ChatController) GetMessageCount() int {
	return chat.GetMessageCount(c.assembler.Conversation())
}

func (c *ChatController) GetLastAssistantMessage() (chat.AssembledMessage, bool) {
	return chat.GetLastAssistantMessage(c.assembler.Conversation())
}
