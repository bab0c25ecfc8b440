// Command followwatch is the operator CLI.
//
// Usage:
//
//	followwatch session login
//	followwatch session test --probe instagram
//	followwatch cycle run
//	followwatch check <profile-id>
//	followwatch user add --email owner@example.com --notify 123456789
//	followwatch profile add <user-id> <handle>
//	followwatch alert add <user-id> <profile-id> <threshold>
//	followwatch dashboard <user-id>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/socialpulse/followwatch/internal/app"
	"github.com/socialpulse/followwatch/internal/config"
	"github.com/socialpulse/followwatch/internal/logging"
)

func main() {
	_ = godotenv.Load(".env")

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:          "followwatch",
		Short:        "Follower-count monitoring operator CLI",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(sessionCmd())
	root.AddCommand(cycleCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(pruneCmd())
	root.AddCommand(userCmd())
	root.AddCommand(profileCmd())
	root.AddCommand(alertCmd())
	root.AddCommand(dashboardCmd())
	root.AddCommand(topChangesCmd())
	root.AddCommand(growthCmd())
	root.AddCommand(notifyCmd())
	return root
}

// run handles config loading, wiring and interrupt cancellation
func run(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logFile := logging.Setup(cfg)
	defer logFile.Close()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
