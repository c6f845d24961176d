package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/quizzard/internal/app"
	"github.com/victornm/quizzard/internal/errors"
)

func newLoginCmd(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			openURL := func(u string) error {
				_, err := fmt.Fprintf(cmd.ErrOrStderr(), "Open this URL to sign in:\n\n  %s\n\n", u)
				return err
			}

			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Auth().Login(ctx); err != nil {
					e := errors.Convert(err)
					return fmt.Errorf("%s %s", e.Message, e.Hint())
				}
				return printYAML(cmd.OutOrStdout(), a.Auth().State())
			}, app.WithOpenURL(openURL))
		},
	}
}

func newLogoutCmd(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and wipe it from every tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				a.Auth().RestoreSession(ctx)

				rep := a.Auth().Logout(ctx)
				for _, f := range rep.Failures {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s %s: %v\n", f.Step, f.Key, f.Err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return nil
			})
		},
	}
}

func newSessionCmd(r *root) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *app.App) error {
				if !a.Auth().RestoreSession(ctx) {
					fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
					return nil
				}

				if refresh {
					if err := a.Auth().RefreshToken(ctx); err != nil {
						e := errors.Convert(err)
						fmt.Fprintf(cmd.ErrOrStderr(), "refresh failed: %s %s\n", e.Message, e.Hint())
					}
				}

				return printYAML(cmd.OutOrStdout(), a.Auth().State())
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh the access token first")
	return cmd
}
