package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plaichat/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bootstrap redirect, title lookup and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, v, false)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.store, a.cfg.UIURL, a.metrics, a.log)
			a.log.Info("serving", "addr", a.cfg.MetricsAddr)
			return srv.Run(cmd.Context(), a.cfg.MetricsAddr)
		},
	}
	cmd.Flags().String("addr", "", "listen address (PLAI_METRICS_ADDR)")
	_ = v.BindPFlag("metrics_addr", cmd.Flags().Lookup("addr"))
	return cmd
}
