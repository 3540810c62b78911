package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkrupp/apptemplate/internal/app"
	http_ "github.com/mkrupp/apptemplate/internal/infra/transport/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the server-rendered app (edge builds only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)

			server, err := app.NewEdgeServer(cfg, nil)
			if err != nil {
				return exitError(ExitConfig, err, "serve: %v", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := http_.ListenAndServe(ctx, server, cfg.HTTP); err != nil {
				return fmt.Errorf("listen and serve: %w", err)
			}

			return nil
		},
	}
}
