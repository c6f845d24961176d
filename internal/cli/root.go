// Package cli is the operator command line: storage status and migration,
// draft inspection, and the sign-in session.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/victornm/quizzard/internal/app"
	"github.com/victornm/quizzard/internal/config"
	"github.com/victornm/quizzard/internal/telemetry"
)

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

type root struct {
	configPath string
	logLevel   string
	opts       []app.Option
}

// NewRootCmd builds the command tree. opts are passed to every app.Init.
func NewRootCmd(opts ...app.Option) *cobra.Command {
	r := &root{opts: opts}

	cmd := &cobra.Command{
		Use:          "quizzard",
		Short:        "Quiz draft storage and sign-in session tooling",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&r.configPath, "config", os.Getenv("CONFIG_PATH"), "path to YAML config")
	cmd.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newStatusCmd(r),
		newMigrateCmd(r),
		newDraftsCmd(r),
		newLoginCmd(r),
		newLogoutCmd(r),
		newSessionCmd(r),
		newRunCmd(r),
	)
	return cmd
}

func (r *root) loadConfig(cmd *cobra.Command) (app.Config, error) {
	c := app.DefaultConfig()
	if err := config.Load(r.configPath, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}
	if r.logLevel != "" {
		c.Log.Level = r.logLevel
	}

	telemetry.NewLogger(cmd.ErrOrStderr(), c.Log)
	return c, nil
}

// run builds the app for one command and shuts it down afterwards.
func (r *root) run(cmd *cobra.Command, f func(ctx context.Context, a *app.App) error, opts ...app.Option) error {
	c, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	a, err := app.Init(c, append(append([]app.Option{}, r.opts...), opts...)...)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	return f(cmd.Context(), a)
}

// printYAML renders v with its JSON field names.
func printYAML(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
