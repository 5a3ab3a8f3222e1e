package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plaichat/internal/tokens"
)

func newSessionCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create chat sessions with a project token",
	}

	var agentID, externalRef, projectJWT string
	create := &cobra.Command{
		Use:   "create",
		Short: "Open a new chat session for an agent and store its tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			s, apiErr := a.client.CreateSession(cmd.Context(), agentID, externalRef, projectJWT)
			if apiErr != nil {
				return fmt.Errorf("creating session: %w", apiErr)
			}

			sessionID, err := tokens.Bootstrap(a.store, tokens.BootstrapParams{
				Access:   s.ChatToken,
				Refresh:  s.RefreshToken,
				ThreadID: s.ThreadID,
			})
			if err != nil {
				return err
			}
			// A new session never continues the previous session's thread.
			a.store.Set(tokens.ActiveThreadID, s.ThreadID)

			fmt.Fprintf(cmd.OutOrStdout(), "Created session %s (thread %s)\n", sessionID, s.ThreadID)
			if a.cfg.UIURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/chats/%s\n", a.cfg.UIURL, sessionID)
			}
			return nil
		},
	}

	f := create.Flags()
	f.StringVar(&agentID, "agent", "", "agent id")
	f.StringVar(&externalRef, "external-ref", "", "caller reference, generated when empty")
	f.StringVar(&projectJWT, "project-jwt", "", "project token authorised to open sessions")
	_ = create.MarkFlagRequired("agent")
	_ = create.MarkFlagRequired("project-jwt")

	cmd.AddCommand(create)
	return cmd
}
