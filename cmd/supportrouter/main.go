// Command supportrouter runs the customer-support routing service.
//
//	supportrouter serve      # HTTP API, widget socket and channel webhooks
//	supportrouter migrate    # create or update the database schema
//	supportrouter evaluate   # run the rule ladder on one message and print the decision
//
// Configuration is read from the environment; --env-file loads dotenv files
// first without overriding variables that are already set.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/support-router/internal/config"
	"github.com/tbourn/support-router/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "supportrouter",
		Short:         "Customer-support routing and escalation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.LoadDotEnv(envFiles...)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newEvaluateCmd())
	return root
}

func appVersion() string {
	return sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg config.Config) {
	sysutil.ConfigureLogger(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		NoColor: sysutil.IsTruthy(os.Getenv("NO_COLOR")),
		Version: appVersion(),
	})
}
