package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socialpulse/followwatch/internal/app"
	"github.com/socialpulse/followwatch/internal/sources"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the source login session",
	}
	cmd.AddCommand(sessionLoginCmd())
	cmd.AddCommand(sessionTestCmd())
	cmd.AddCommand(sessionInfoCmd())
	return cmd
}

func sessionLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with INSTAGRAM_USERNAME/INSTAGRAM_PASSWORD and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				if !a.Sessions.HasCredentials() {
					return fmt.Errorf("INSTAGRAM_USERNAME and INSTAGRAM_PASSWORD are required")
				}
				if err := a.Sessions.Login(ctx, a.Source); err != nil {
					return err
				}
				fmt.Println("✅ Session saved")
				return nil
			})
		},
	}
}

func sessionTestCmd() *cobra.Command {
	var probe string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Verify the saved session with one request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				if err := a.Source.TestSession(ctx, probe); err != nil {
					fmt.Printf("❌ Session test failed: %v\n", err)
					return err
				}
				fmt.Println("✅ Session is working")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&probe, "probe", "instagram", "Handle used for the test request")
	return cmd
}

func sessionInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				info, err := a.Sessions.Info(ctx)
				if errors.Is(err, sources.ErrNoSession) {
					fmt.Printf("No session saved at %s\n", info.Name)
					return nil
				}
				if err != nil {
					return err
				}
				return printJSON(info)
			})
		},
	}
}
