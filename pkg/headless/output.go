package headless

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/killallgit/composer/pkg/chat"
	"github.com/killallgit/composer/pkg/classify"
	"github.com/killallgit/composer/pkg/tokens"
)

const sourceExcerpt = 160

var (
	errorTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	errorBodyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	linkStyle       = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	promptStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

// Output handles console output for headless mode
type Output struct {
	out    io.Writer
	errOut io.Writer
}

func NewOutput(out, errOut io.Writer) *Output {
	return &Output{out: out, errOut: errOut}
}

// Error renders a classified error as a title line and a body line
func (o *Output) Error(err *classify.Error) {
	fmt.Fprintln(o.errOut, errorTitleStyle.Render(err.Title))
	fmt.Fprintln(o.errOut, errorBodyStyle.Render(err.Body))
}

func (o *Output) Notice(msg string) {
	fmt.Fprintln(o.out, dimStyle.Render(msg))
}

// Sources lists citations under the answer. Nothing is printed when there
// are none.
func (o *Output) Sources(sources []chat.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(o.out)
	fmt.Fprintln(o.out, headerStyle.Render("Sources"))
	for i, src := range sources {
		link := src.Link
		if link == "" {
			link = "(no link)"
		}
		fmt.Fprintf(o.out, "  [%d] %s\n", i+1, linkStyle.Render(link))
		if body := excerpt(src.Body, sourceExcerpt); body != "" {
			fmt.Fprintf(o.out, "      %s\n", dimStyle.Render(body))
		}
	}
}

func (o *Output) Tokens(usage tokens.Usage) {
	fmt.Fprintln(o.out, dimStyle.Render(fmt.Sprintf("[Tokens - Sent: %s, Received: %s, Total: %s]",
		humanize.Comma(int64(usage.User)),
		humanize.Comma(int64(usage.Assistant)),
		humanize.Comma(int64(usage.Total())))))
}

// History prints the conversation so far, one message per block
func (o *Output) History(label string, history []chat.AssembledMessage) {
	if len(history) == 0 {
		o.Notice("No messages yet")
		return
	}
	for _, msg := range history {
		author := "You"
		if msg.IsAssistant() {
			author = label
		}
		fmt.Fprintf(o.out, "%s %s\n", promptStyle.Render(author+":"), msg.Text)
		for _, a := range msg.Attachments {
			fmt.Fprintf(o.out, "  %s\n", dimStyle.Render(fmt.Sprintf("attached %s (%s)", a.Name, humanize.Bytes(uint64(a.Size)))))
		}
		if msg.HasSources() {
			fmt.Fprintf(o.out, "  %s\n", dimStyle.Render(fmt.Sprintf("%d sources", len(msg.Sources))))
		}
	}
}

func (o *Output) Prompt(label string) {
	fmt.Fprint(o.out, promptStyle.Render(label+" > "))
}

func (o *Output) Welcome(label string, examples []string) {
	fmt.Fprintln(o.out, headerStyle.Render("Chatting with "+label))
	for _, q := range examples {
		fmt.Fprintln(o.out, dimStyle.Render("  e.g. "+q))
	}
	fmt.Fprintln(o.out, dimStyle.Render("Type /help for commands. Ctrl+C stops an answer."))
}

func excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
