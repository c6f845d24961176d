package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/quizzard/internal/app"
	"github.com/victornm/quizzard/internal/auth"
	"github.com/victornm/quizzard/internal/storage"
)

type statusReport struct {
	Storage storage.Status `json:"storage"`
	Session auth.State     `json:"session"`
	Drafts  int            `json:"drafts"`
}

func newStatusCmd(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show storage tier health, session and stored drafts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				a.Auth().RestoreSession(ctx)

				drafts, err := a.Drafts().List(ctx)
				if err != nil {
					return fmt.Errorf("list drafts: %w", err)
				}

				return printYAML(cmd.OutOrStdout(), statusReport{
					Storage: a.Store().Status(ctx),
					Session: a.Auth().State(),
					Drafts:  len(drafts),
				})
			})
		},
	}
}

func newMigrateCmd(r *root) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy records from the fallback tier into the primary tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Store().MigrateAll(ctx, prefix)
				fmt.Fprintf(cmd.OutOrStdout(), "migrated %d record(s)\n", n)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "only migrate keys with this prefix")
	return cmd
}
