package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plaichat/internal/tokens"
)

func newLogoutCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sessionID, _ := a.store.Get(tokens.SessionID)
			for _, name := range tokens.SessionKeys {
				a.store.Forget(name)
			}

			a.log.Info("session forgotten", "session_id", sessionID)
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
