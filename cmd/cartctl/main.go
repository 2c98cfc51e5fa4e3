// Command cartctl inspects and maintains persisted carts.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/storefront-cart/internal/app"
	"github.com/noah-isme/storefront-cart/internal/config"
	"github.com/noah-isme/storefront-cart/internal/obs"
)

func main() {
	if err := newRootCmd(openFromEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

// opener connects the configured backends. Tests substitute an in-memory one.
type opener func(cmd *cobra.Command) (*app.Dependencies, *config.Config, error)

func openFromEnv(cmd *cobra.Command) (*app.Dependencies, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	deps, err := app.Open(cmd.Context(), cfg, app.Options{Logger: cliLogger(cfg)})
	if err != nil {
		return nil, nil, err
	}
	return deps, cfg, nil
}

func cliLogger(cfg *config.Config) zerolog.Logger {
	return obs.NewLoggerTo(os.Stderr, "console", cfg.LogLevel)
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "cartctl",
		Short:         "Inspect and maintain persisted storefront carts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newShowCmd(open),
		newPurgeCmd(open),
		newValidateSeedCmd(),
	)
	return root
}
