package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lectern/internal/logging"
	"lectern/internal/progress"
	"lectern/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local playback API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Paths.APIBind = bind
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			s, err := ctx.openSession(logger, ctx.serverPrompter())
			if err != nil {
				return err
			}
			defer s.close(context.Background())

			syncer := progress.NewSyncer(s.svc.ProgressStore(), cfg.Sync, logger)
			srv, err := server.New(cfg, s.svc, syncer, logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(runCtx); err != nil {
				return err
			}
			defer srv.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s (Ctrl+C to stop)\n", srv.Addr())
			<-runCtx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "Shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override the API bind address")
	return cmd
}
