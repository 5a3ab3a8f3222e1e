package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plaichat/internal/tokens"
)

func newLoginCmd(v *viper.Viper) *cobra.Command {
	var (
		redirectURL string
		params      tokens.BootstrapParams
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the session tokens handed over by an embedding page",
		Long: "Store an access/refresh token pair and the thread to open. The values can be\n" +
			"given one by one or as the full /chats redirect URL.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			p := params
			if redirectURL != "" {
				fromURL, err := tokens.ParseBootstrapURL(redirectURL)
				if err != nil {
					return err
				}
				p = mergeParams(fromURL, params)
			}

			sessionID, err := tokens.Bootstrap(a.store, p)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("thread") {
				a.store.Set(tokens.ActiveThreadID, p.ThreadID)
			}

			a.log.Info("session stored", "session_id", sessionID)
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to session %s\n", sessionID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&redirectURL, "url", "", "full bootstrap URL with access, refresh and threadId parameters")
	f.StringVar(&params.Access, "access", "", "access token")
	f.StringVar(&params.Refresh, "refresh", "", "refresh token")
	f.StringVar(&params.ThreadID, "thread", "", "thread to open")
	f.StringVar(&params.UserName, "user-name", "", "name shown in the greeting")
	f.StringVar(&params.GreetingMessage, "greeting", "", "greeting shown on an empty thread")
	return cmd
}

// mergeParams lets explicit flags override values read from a URL.
func mergeParams(base, override tokens.BootstrapParams) tokens.BootstrapParams {
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	return tokens.BootstrapParams{
		Access:          pick(base.Access, override.Access),
		Refresh:         pick(base.Refresh, override.Refresh),
		ThreadID:        pick(base.ThreadID, override.ThreadID),
		UserName:        pick(base.UserName, override.UserName),
		GreetingMessage: pick(base.GreetingMessage, override.GreetingMessage),
	}
}
