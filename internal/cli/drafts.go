package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/victornm/quizzard/internal/app"
	"github.com/victornm/quizzard/internal/wizard"
)

type draftSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Rounds    int       `json:"rounds"`
	Questions int       `json:"questions"`
	Valid     bool      `json:"valid"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newDraftsCmd(r *root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Inspect stored quiz drafts",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored drafts, most recent first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return r.run(cmd, func(ctx context.Context, a *app.App) error {
					drafts, err := a.Drafts().List(ctx)
					if err != nil {
						return fmt.Errorf("list drafts: %w", err)
					}

					out := make([]draftSummary, 0, len(drafts))
					for _, d := range drafts {
						questions := 0
						for _, rd := range d.Rounds {
							questions += len(rd.Questions)
						}
						out = append(out, draftSummary{
							ID:        d.ID,
							Title:     d.Title,
							Rounds:    len(d.Rounds),
							Questions: questions,
							Valid:     wizard.ValidateAll(d, d.UpdatedAt).IsValid,
							UpdatedAt: d.UpdatedAt,
						})
					}
					return printYAML(cmd.OutOrStdout(), out)
				})
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a draft with its validation result",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, func(ctx context.Context, a *app.App) error {
					d, err := a.Drafts().Load(ctx, args[0])
					if err != nil {
						return fmt.Errorf("load draft %s: %w", args[0], err)
					}

					return printYAML(cmd.OutOrStdout(), map[string]any{
						"draft":      d,
						"validation": wizard.ValidateAll(d, d.UpdatedAt),
					})
				})
			},
		},
		&cobra.Command{
			Use:   "discard <id>",
			Short: "Delete a stored draft from both tiers",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, func(ctx context.Context, a *app.App) error {
					if err := a.Drafts().Discard(ctx, args[0]); err != nil {
						return fmt.Errorf("discard draft %s: %w", args[0], err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "discarded %s\n", args[0])
					return nil
				})
			},
		},
	)

	return cmd
}
