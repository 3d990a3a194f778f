package controllers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/killallgit/composer/pkg/assistants"
	"github.com/killallgit/composer/pkg/logger"
)

type AssistantCatalog interface {
	List(ctx context.Context) ([]assistants.Assistant, error)
	Lookup(ctx context.Context, name string) (assistants.Assistant, error)
	Default(ctx context.Context) (assistants.Assistant, error)
}

type AssistantsController struct {
	catalog AssistantCatalog
}

func NewAssistantsController(catalog AssistantCatalog) *AssistantsController {
	return &AssistantsController{
		catalog: catalog,
	}
}

// Resolve returns the assistant called name, or the default one when name
// is empty.
func (ac *AssistantsController) Resolve(ctx context.Context, name string) (assistants.Assistant, error) {
	log := logger.WithComponent("assistants_controller")

	if name == "" {
		a, err := ac.catalog.Default(ctx)
		if err != nil {
			log.Error("Failed to resolve default assistant", "error", err)
			return assistants.Assistant{}, err
		}
		log.Debug("Resolved default assistant", "assistant", a.Name)
		return a, nil
	}

	a, err := ac.catalog.Lookup(ctx, name)
	if err != nil {
		log.Error("Failed to resolve assistant", "assistant", name, "error", err)
		return assistants.Assistant{}, err
	}
	return a, nil
}

func (ac *AssistantsController) ListAssistants(ctx context.Context, writer io.Writer) error {
	list, err := ac.catalog.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list assistants: %w", err)
	}

	if len(list) == 0 {
		fmt.Fprintln(writer, "No assistants found")
		return nil
	}

	w := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISPLAY NAME\tDESCRIPTION")

	for _, a := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			a.Name,
			a.Label(),
			oneLine(a.Description))
	}

	return w.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
