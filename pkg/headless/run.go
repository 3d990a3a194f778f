package headless

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/killallgit/composer/pkg/chat"
	"github.com/killallgit/composer/pkg/controllers"
)

// Options configures a terminal session.
type Options struct {
	// Prompt runs a single turn; empty starts an interactive session.
	Prompt string
	// Attachments are file paths sent with Prompt.
	Attachments []string
	In          io.Reader
	Out         io.Writer
	ErrOut      io.Writer
}

// Run executes a one-shot prompt or an interactive session. Ctrl+C stops
// the answer being streamed; pressed while idle it ends the session.
func Run(ctx context.Context, session *controllers.Session, opts Options) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ErrOut == nil {
		opts.ErrOut = os.Stderr
	}

	ctx, quit := context.WithCancel(ctx)
	defer quit()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go handleInterrupts(ctx, sigs, session.Chat, quit)

	r := newRunner(session, opts.Out, opts.ErrOut)

	if opts.Prompt == "" {
		if len(opts.Attachments) > 0 {
			return fmt.Errorf("attachments require a prompt")
		}
		return r.interactive(ctx, opts.In)
	}

	attachments := make([]chat.Attachment, 0, len(opts.Attachments))
	for _, path := range opts.Attachments {
		a, err := chat.NewFileAttachment(path)
		if err != nil {
			return err
		}
		attachments = append(attachments, a)
	}

	if err := r.runTurn(ctx, opts.Prompt, attachments); err != nil {
		return fmt.Errorf("failed to execute prompt: %w", err)
	}
	return nil
}

type stopper interface {
	Stop() bool
}

// handleInterrupts stops the running turn on each signal, or calls quit
// when nothing is running.
func handleInterrupts(ctx context.Context, sigs <-chan os.Signal, s stopper, quit context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			if s.Stop() {
				continue
			}
			quit()
			return
		}
	}
}
