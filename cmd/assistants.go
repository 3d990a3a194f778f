package cmd

import (
	"fmt"

	"github.com/killallgit/composer/pkg/assistants"
	"github.com/killallgit/composer/pkg/client"
	"github.com/killallgit/composer/pkg/config"
	"github.com/killallgit/composer/pkg/controllers"
	"github.com/spf13/cobra"
)

var assistantsCmd = &cobra.Command{
	Use:   "assistants",
	Short: "List available assistants",
	Long:  `List every assistant the configured backend serves`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		backend := client.NewClient(cfg.Backend.URL, client.WithAPITimeout(cfg.Backend.Timeout))
		controller := controllers.NewAssistantsController(assistants.NewCatalog(backend, cfg.Catalog.TTL, cfg.Assistant))

		if err := controller.ListAssistants(cmd.Context(), cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("error listing assistants: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(assistantsCmd)
}
