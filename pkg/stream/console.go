package stream

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ConsoleHandler writes answer text to out as it arrives and failures to
// errOut. It also keeps what it printed.
type ConsoleHandler struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	content strings.Builder
}

// NewConsoleHandler creates a handler for out and errOut; nil writers
// default to stdout and stderr.
func NewConsoleHandler(out, errOut io.Writer) *ConsoleHandler {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &ConsoleHandler{out: out, errOut: errOut}
}

// OnChunk writes chunk to out
func (h *ConsoleHandler) OnChunk(chunk []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.content.Write(chunk)
	_, err := h.out.Write(chunk)
	return err
}

// OnComplete terminates the answer with a newline
func (h *ConsoleHandler) OnComplete(finalContent string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(finalContent) > 0 && finalContent[len(finalContent)-1] != '\n' {
		_, err := fmt.Fprintln(h.out)
		return err
	}
	return nil
}

// OnError prints err to errOut
func (h *ConsoleHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.errOut, "Error: %v\n", err)
}

// Content returns everything written by OnChunk
func (h *ConsoleHandler) Content() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.content.String()
}

// Ensure ConsoleHandler implements Handler
var _ Handler = (*ConsoleHandler)(nil)
