package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizzard/internal/app"
)

func newRunCmd(r *root) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep the session alive in the foreground and serve diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
				defer stop()

				if a.Start(ctx) {
					slog.InfoContext(ctx, "cli: session restored")
				}

				srv := &http.Server{
					Addr:              addr,
					Handler:           a.Handler(),
					ReadHeaderTimeout: 60 * time.Second,
				}

				eg, ctx := errgroup.WithContext(ctx)
				eg.Go(func() error {
					slog.InfoContext(ctx, fmt.Sprintf("cli: diagnostics listening on %s", addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				eg.Go(func() error {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(sctx)
				})

				return eg.Wait()
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9464", "diagnostics listen address")
	return cmd
}
