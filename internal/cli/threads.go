package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plaichat/internal/models"
	"plaichat/internal/session"
	"plaichat/internal/ui"
)

func newThreadsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Manage the threads of the stored session",
	}

	var search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List threads, newest first",
		Args:  cobra.NoArgs,
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

			threads := sess.Threads()
			if search != "" {
				threads = session.FilterThreads(threads, search)
			}
			if len(threads) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("no_threads_yet"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), threadTable(threads, sess.ActiveThreadID()))
			return nil
		},
	}
	list.Flags().StringVarP(&search, "search", "s", "", "only show threads whose title contains this text")

	del := &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread",
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

			if err := sess.DeleteThread(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("%s: %w", a.tr.T("thread_delete_failed"), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", a.tr.T("chat_deleted"), args[0])
			return nil
		},
	}

	create := &cobra.Command{
		Use:   "new",
		Short: "Create a thread and make it active",
		Args:  cobra.NoArgs,
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

			t, err := sess.NewThread(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %w", a.tr.T("thread_create_failed"), err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.ID)
			return nil
		},
	}

	cmd.AddCommand(list, del, create)
	return cmd
}

func threadTable(threads []models.Thread, activeID string) string {
	rows := make([][]string, 0, len(threads))
	for _, t := range threads {
		marker := ""
		if t.ID == activeID {
			marker = "●"
		}
		updated := t.UpdatedAt
		if ts, ok := ui.ParseTimestamp(t.UpdatedAt); ok {
			updated = ui.RelativeTime(ts)
		}
		rows = append(rows, []string{marker, t.ID, ui.TruncateRunes(t.DisplayTitle(), 48), updated})
	}

	return table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("", "ID", "TITLE", "UPDATED").
		Rows(rows...).
		String()
}
