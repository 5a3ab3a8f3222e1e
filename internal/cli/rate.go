package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plaichat/internal/models"
)

func parseRating(s string) (models.Rating, error) {
	switch r := models.Rating(strings.ToUpper(s)); r {
	case models.RatingPositive, models.RatingNegative:
		return r, nil
	default:
		return "", fmt.Errorf("rating must be positive or negative, got %q", s)
	}
}

func newRateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:       "rate <message-id> positive|negative",
		Short:     "Rate an assistant message",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"positive", "negative"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := parseRating(args[1])
			if err != nil {
				return err
			}

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

			agentID := sess.ChatSession().Agent.ID
			if apiErr := a.client.RateMessage(cmd.Context(), sess.Token(), agentID, args[0], rating); apiErr != nil {
				return fmt.Errorf("%s: %w", a.tr.T("rating_failed"), apiErr)
			}

			key := "rated_positive"
			if rating == models.RatingNegative {
				key = "rated_negative"
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.tr.T(key))
			return nil
		},
	}
}
