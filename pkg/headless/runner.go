package headless

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/killallgit/composer/pkg/chat"
	"github.com/killallgit/composer/pkg/classify"
	"github.com/killallgit/composer/pkg/controllers"
	"github.com/killallgit/composer/pkg/logger"
	"github.com/killallgit/composer/pkg/stream"
	"github.com/killallgit/composer/pkg/tokens"
)

const helpText = `Commands:
  /assistant <name>  switch assistant and start a new conversation
  /assistants        list available assistants
  /history           show the conversation so far
  /help              show this help
  /quit              exit`

// runner drives a chat session from the terminal
type runner struct {
	chat       *controllers.ChatController
	assistants *controllers.AssistantsController
	output     *Output
	counter    *tokens.TokenCounter
	out        io.Writer
}

func newRunner(session *controllers.Session, out, errOut io.Writer) *runner {
	session.Chat.SetHandler(stream.NewConsoleHandler(out, io.Discard))
	return &runner{
		chat:       session.Chat,
		assistants: session.Assistants,
		output:     NewOutput(out, errOut),
		counter:    tokens.NewTokenCounter(tokens.DefaultEncoding),
		out:        out,
	}
}

// runTurn sends one prompt and renders the result. Visible failures are
// printed and returned as *classify.Error.
func (r *runner) runTurn(ctx context.Context, prompt string, attachments []chat.Attachment) error {
	logger.Debug("User prompt: %s (attachments: %d)", prompt, len(attachments))

	turn, err := r.chat.SendMessage(ctx, prompt, attachments)

	var classified *classify.Error
	if errors.As(err, &classified) {
		r.output.Error(classified)
	} else if err != nil {
		return err
	}

	if turn == nil {
		return err
	}
	if turn.Cancelled {
		fmt.Fprintln(r.out)
		r.output.Notice("Stopped")
		return nil
	}

	r.output.Sources(turn.Sources)
	r.output.Tokens(r.counter.CountConversation(r.chat.GetHistory()))
	return err
}

// interactive reads prompts and commands from in until /quit, end of
// input or ctx ends.
func (r *runner) interactive(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	current := r.chat.Assistant()
	r.output.Welcome(current.Label(), current.ExampleQuestions)

	for {
		r.output.Prompt(r.chat.Assistant().Label())

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}

		err := r.runTurn(ctx, line, nil)
		var classified *classify.Error
		if err != nil && !errors.As(err, &classified) {
			return err
		}
	}
}

// command runs a slash command and reports whether the session should end.
func (r *runner) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/history":
		r.output.History(r.chat.Assistant().Label(), r.chat.GetHistory())
	case "/assistants":
		if err := r.assistants.ListAssistants(ctx, r.out); err != nil {
			r.output.Notice(err.Error())
		}
	case "/assistant":
		if arg == "" {
			r.output.Notice("Usage: /assistant <name>")
			return false, nil
		}
		next, err := r.assistants.Resolve(ctx, arg)
		if err != nil {
			r.output.Notice(err.Error())
			return false, nil
		}
		r.chat.SwitchAssistant(next)
		r.output.Notice("Switched to " + next.Label())
	default:
		r.output.Notice("Unknown command " + name + ", try /help")
	}
	return false, nil
}
