// Package cli wires configuration, storage and the backend client into the
// plaichat commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"plaichat/internal/config"
)

// flagKeys maps persistent flags onto their viper keys.
var flagKeys = map[string]string{
	"api-url":          "api_url",
	"ui-url":           "ui_url",
	"db-path":          "db_path",
	"request-timeout":  "request_timeout",
	"strict-citations": "strict_citations",
	"lang":             "lang",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"log-file":         "log.file",
}

// NewRootCmd builds the command tree around a fresh viper instance.
func NewRootCmd() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:           "plaichat",
		Short:         "Terminal client for PLai chat sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is the normal case.
			_ = godotenv.Load()
		},
	}

	flags := root.PersistentFlags()
	flags.String("api-url", "", "PLai backend base URL (PLAI_API_URL)")
	flags.String("ui-url", "", "base URL of the chat UI used in redirects (PLAI_UI_URL)")
	flags.String("db-path", "", "path of the local state database (PLAI_DB_PATH)")
	flags.Duration("request-timeout", config.DefaultRequestTimeout, "timeout of non-streaming backend requests")
	flags.Bool("strict-citations", false, "reject citation tags that do not match the strict grammar")
	flags.String("lang", "", "interface language, en or es")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "text", "text or json")
	flags.String("log-file", "", "log file used while the chat UI owns the terminal")
	for name, key := range flagKeys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(
		newChatCmd(v),
		newLoginCmd(v),
		newLogoutCmd(v),
		newThreadsCmd(v),
		newSessionCmd(v),
		newRateCmd(v),
		newResourceCmd(v),
		newTranscribeCmd(v),
		newServeCmd(v),
	)
	return root
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
