package cmd

import (
	"fmt"
	"os"

	"github.com/killallgit/composer/pkg/config"
	"github.com/killallgit/composer/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "composer",
	Short: "Chat with knowledge assistants from the terminal",
	Long: `Composer streams answers from assistants served by a retrieval backend,
showing the sources each answer was built from.

Run without arguments for an interactive session, or pass --prompt for a
single answer.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, _ := cmd.Flags().GetString("prompt")
		attachments, _ := cmd.Flags().GetStringSlice("attach")

		return RunApplication(cmd.Context(), &AppConfig{
			Config:      config.Get(),
			Prompt:      prompt,
			Attachments: attachments,
			In:          cmd.InOrStdin(),
			Out:         cmd.OutOrStdout(),
			ErrOut:      cmd.ErrOrStderr(),
		})
	},
}

// setup loads configuration and starts logging before any command runs
func setup(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(cfgFile); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if used := config.GetConfigFileUsed(); used != "" {
		logger.Debug("Using config file: %s", used)
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.composer/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("backend-url", "", "assistant backend URL")
	viper.BindPFlag("backend.url", rootCmd.PersistentFlags().Lookup("backend-url"))

	rootCmd.PersistentFlags().StringP("assistant", "a", "", "assistant to chat with (default is the first one listed)")
	viper.BindPFlag("assistant", rootCmd.PersistentFlags().Lookup("assistant"))

	rootCmd.Flags().StringP("prompt", "p", "", "ask a single question and exit")
	rootCmd.Flags().StringSlice("attach", nil, "file to send with --prompt (repeatable)")
}
