// Package classify turns transport failures into user-facing notifications.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/killallgit/composer/pkg/cancel"
	"github.com/killallgit/composer/pkg/chat"
)

type Kind string

const (
	KindAssistantUnavailable Kind = "AssistantUnavailable"
	KindAssistantError       Kind = "AssistantError"
	KindGenericError         Kind = "GenericError"
	KindMalformedSourceBlock Kind = "MalformedSourceBlock"
	KindInvalidAttachment    Kind = "InvalidAttachment"
	KindCancelledByUser      Kind = "CancelledByUser"
)

// Error is a classified, dismissible failure.
type Error struct {
	Kind   Kind
	Title  string
	Body   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Body)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Template is the title and body for a kind. Body may contain one %s for
// the assistant label.
type Template struct {
	Title string
	Body  string
}

// DefaultTemplates is the text shown for each status-driven kind.
var DefaultTemplates = map[Kind]Template{
	KindAssistantUnavailable: {
		Title: "404: Network error",
		Body:  "%s is currently unavailable. Use a different assistant or try again later.",
	},
	KindAssistantError: {
		Title: "Server error",
		Body:  "%s has encountered an error and is unable to answer your question. Use a different assistant or try again later.",
	},
	KindMalformedSourceBlock: {
		Title: "Sources unavailable",
		Body:  "%s answered, but the sources for this answer could not be read.",
	},
}

const genericTitle = "Error"

// otherStatusTitle is used for non-2xx statuses other than 404 and 500.
const otherStatusTitle = "Error"

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

type Classifier struct {
	templates      map[Kind]Template
	timeoutVisible bool
}

type Option func(*Classifier)

// WithTemplates overrides individual kind templates.
func WithTemplates(templates map[Kind]Template) Option {
	return func(c *Classifier) {
		for k, v := range templates {
			c.templates[k] = v
		}
	}
}

// WithTimeoutVisible decides whether a timed-out turn surfaces as an
// AssistantError (true) or is suppressed like a user cancellation.
func WithTimeoutVisible(visible bool) Option {
	return func(c *Classifier) {
		c.timeoutVisible = visible
	}
}

func New(opts ...Option) *Classifier {
	c := &Classifier{
		templates:      make(map[Kind]Template, len(DefaultTemplates)),
		timeoutVisible: true,
	}
	for k, v := range DefaultTemplates {
		c.templates[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify maps err to a user-facing error for the assistant labelled
// label. It returns nil for nil errors and for cancellations that must not
// be shown.
func (c *Classifier) Classify(err error, label string) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if cancel.IsSuppressed(err) {
		return nil
	}
	if errors.Is(err, cancel.ErrTimedOut) || errors.Is(err, context.DeadlineExceeded) {
		if !c.timeoutVisible {
			return nil
		}
		return c.render(KindAssistantError, otherStatusTitle, label, 0, err)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return c.FromStatus(sc.HTTPStatus(), label, err)
	}

	var verr *chat.ValidationError
	if errors.As(err, &verr) {
		return &Error{Kind: KindInvalidAttachment, Title: verr.Title, Body: verr.Body, Err: err}
	}

	if errors.Is(err, chat.ErrMalformedSourceBlock) {
		return c.render(KindMalformedSourceBlock, "", label, 0, err)
	}

	body := err.Error()
	if strings.TrimSpace(body) == "" {
		body = fmt.Sprintf("%T", err)
	}
	return &Error{Kind: KindGenericError, Title: genericTitle, Body: body, Err: err}
}

// FromStatus classifies a non-2xx HTTP status. The status is kept on the
// result for diagnostics.
func (c *Classifier) FromStatus(status int, label string, cause error) *Error {
	switch status {
	case http.StatusNotFound:
		return c.render(KindAssistantUnavailable, "", label, status, cause)
	case http.StatusInternalServerError:
		return c.render(KindAssistantError, "", label, status, cause)
	default:
		return c.render(KindAssistantError, otherStatusTitle, label, status, cause)
	}
}

func (c *Classifier) render(kind Kind, title, label string, status int, cause error) *Error {
	tmpl := c.templates[kind]
	if title == "" {
		title = tmpl.Title
	}
	body := tmpl.Body
	if strings.Contains(body, "%s") {
		body = fmt.Sprintf(body, label)
	}
	return &Error{
		Kind:   kind,
		Title:  title,
		Body:   body,
		Status: status,
		Err:    cause,
	}
}
