// File: cmd/replyctl/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ai-reply-assistant/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd(defaultEnv()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env carries what every command needs. Tests swap loadConfig and open.
type env struct {
	cfgPath    string
	dev        bool
	loadConfig func(path string, dev bool) (*config.Config, error)
	open       func(ctx context.Context, cfg *config.Config) (*app, error)
}

func defaultEnv() *env {
	return &env{loadConfig: config.LoadConfig, open: openApp}
}

func (e *env) config() (*config.Config, error) {
	cfg, err := e.loadConfig(e.cfgPath, e.dev)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// withApp loads config, opens the stores and runs fn.
func (e *env) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := e.config()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := e.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "replyctl",
		Short:         "Operate the reply suggestion queue",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&e.cfgPath, "config", "config.yaml", "path to YAML config file")
	root.PersistentFlags().BoolVar(&e.dev, "dev", false, "developer mode (console logs)")

	root.AddCommand(
		newDeadLettersCmd(e),
		newVoidCmd(e),
		newResendCmd(e),
		newEnqueueCmd(e),
		newPolicyCmd(e),
		newTokenCmd(e),
	)
	return root
}

func printSuccess(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintln(cmd.ErrOrStderr(), "✓ "+fmt.Sprintf(format, args...))
}
