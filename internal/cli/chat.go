package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plaichat/internal/conversation"
	"plaichat/internal/server"
	"plaichat/internal/stream"
	"plaichat/internal/tokens"
	"plaichat/internal/ui"
)

const titleLookupTimeout = 10 * time.Second

func newChatCmd(v *viper.Viper) *cobra.Command {
	var (
		threadID    string
		audioPath   string
		prompt      string
		withMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat UI for the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(cmd, v, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if threadID != "" {
				a.store.Set(tokens.ActiveThreadID, threadID)
			}

			if audioPath != "" {
				t, err := a.transcriber()
				if err != nil {
					return err
				}
				text, err := t.Transcribe(ctx, audioPath)
				if err != nil {
					return err
				}
				prompt = text
			}

			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer sess.Teardown()

			if withMetrics {
				srv := server.New(a.store, a.cfg.UIURL, a.metrics, a.log)
				go func() {
					if err := srv.Run(ctx, a.cfg.MetricsAddr); err != nil {
						a.log.Error("metrics server stopped", "error", err)
					}
				}()
			}

			bridge := &ui.Bridge{}
			conv := conversation.New(conversation.Deps{
				Streamer:       conversation.APIStreamer{Client: a.client},
				Threads:        a.client,
				Refresher:      a.client,
				Tokens:         a.store,
				Session:        sess,
				Translator:     a.tr,
				Notifier:       bridge,
				Logger:         a.log,
				Metrics:        a.metrics,
				UIURL:          a.cfg.UIURL,
				DecoderOptions: []stream.Option{stream.WithStrictCitations(a.cfg.StrictCitations)},
			})

			err = ui.Run(ctx, ui.Options{
				Session:       sess,
				Conversation:  conv,
				Rater:         a.client,
				Store:         a.store,
				Translator:    a.tr,
				Logger:        a.log,
				Bridge:        bridge,
				TitleClient:   &http.Client{Timeout: titleLookupTimeout},
				InitialPrompt: prompt,
			})
			if err != nil {
				return fmt.Errorf("running chat UI: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "open this thread instead of the last active one")
	cmd.Flags().StringVar(&audioPath, "audio", "", "transcribe an audio file and send it as the first prompt")
	cmd.Flags().StringVarP(&prompt, "message", "m", "", "send a first prompt on start")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "serve /metrics on metrics_addr while chatting")
	cmd.MarkFlagsMutuallyExclusive("audio", "message")
	return cmd
}
