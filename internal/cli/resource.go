package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newResourceCmd(v *viper.Viper) *cobra.Command {
	var download bool

	cmd := &cobra.Command{
		Use:   "resource <resource-id>",
		Short: "Show a cited resource of the stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Teardown()

			out := cmd.OutOrStdout()
			if download {
				u, err := a.client.GetDownloadURL(cmd.Context(), sess.Token(), sess.SessionID(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, u)
				return nil
			}

			res := a.client.GetResource(cmd.Context(), sess.Token(), sess.SessionID(), args[0])
			if res == nil {
				return errors.New(a.tr.T("resource_deleted"))
			}
			fmt.Fprintln(out, res.Name)
			if res.Summary != "" {
				fmt.Fprintln(out, res.Summary)
			}
			if res.URL != "" {
				fmt.Fprintln(out, res.URL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&download, "download", false, "print a download link instead")
	return cmd
}
