// Package cancel enforces a single in-flight chat turn and records why a
// turn ended early.
package cancel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Cancellation causes. ErrUserCancelled, ErrSuperseded and ErrReset make a
// token inert; ErrTimedOut does not.
var (
	ErrUserCancelled = errors.New("cancelled by user")
	ErrSuperseded    = errors.New("superseded by a newer turn")
	ErrReset         = errors.New("conversation reset")
	ErrTimedOut      = errors.New("turn timed out")
)

// IsSuppressed reports whether err stems from a cancellation the user
// should never be told about.
func IsSuppressed(err error) bool {
	return errors.Is(err, ErrUserCancelled) ||
		errors.Is(err, ErrSuperseded) ||
		errors.Is(err, ErrReset)
}

// Token belongs to exactly one turn. Once inert, everything the turn
// still does must be discarded.
type Token struct {
	id      string
	ctx     context.Context
	cancel  context.CancelCauseFunc
	release context.CancelFunc
	inert   atomic.Bool
}

func (t *Token) ID() string {
	return t.id
}

// Context is attached to the outbound request so cancelling the token
// aborts the connection.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Inert reports whether the turn was stopped, superseded or reset.
func (t *Token) Inert() bool {
	return t.inert.Load()
}

// Cause returns why the token's context ended, or nil while it is live.
func (t *Token) Cause() error {
	if t.ctx.Err() == nil {
		return nil
	}
	return context.Cause(t.ctx)
}

func (t *Token) kill(cause error) {
	t.inert.Store(true)
	t.cancel(cause)
}

// Controller hands out tokens so that at most one turn is active.
type Controller struct {
	mu      sync.Mutex
	active  *Token
	timeout time.Duration
	newID   func() string
}

type Option func(*Controller)

// WithTurnTimeout bounds every turn; zero disables the bound.
func WithTurnTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// WithIDGenerator replaces the uuid token ids.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		c.newID = fn
	}
}

func NewController(opts ...Option) *Controller {
	c := &Controller{newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start supersedes the active token, if any, and issues a new one derived
// from parent.
func (c *Controller) Start(parent context.Context) *Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.active.kill(ErrSuperseded)
	}

	ctx, release := parent, context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, release = context.WithTimeoutCause(parent, c.timeout, ErrTimedOut)
	}
	ctx, cancel := context.WithCancelCause(ctx)

	tok := &Token{
		id:      c.newID(),
		ctx:     ctx,
		cancel:  cancel,
		release: release,
	}
	c.active = tok
	return tok
}

// Stop cancels the active token as a user action. It returns the stopped
// token, or nil when nothing was running.
func (c *Controller) Stop() *Token {
	return c.killActive(ErrUserCancelled)
}

// Reset cancels the active token because the conversation is being
// discarded.
func (c *Controller) Reset() *Token {
	return c.killActive(ErrReset)
}

func (c *Controller) killActive(cause error) *Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok := c.active
	if tok == nil {
		return nil
	}
	tok.kill(cause)
	c.active = nil
	return tok
}

// Done releases tok's resources and clears it if it is still active. It is
// safe to call more than once.
func (c *Controller) Done(tok *Token) {
	c.mu.Lock()
	if c.active == tok {
		c.active = nil
	}
	c.mu.Unlock()

	tok.cancel(context.Canceled)
	tok.release()
}

// Active returns the running token or nil.
func (c *Controller) Active() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) Busy() bool {
	return c.Active() != nil
}
