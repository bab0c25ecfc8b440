package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/socialpulse/followwatch/internal/app"
	"github.com/socialpulse/followwatch/internal/tracking"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var email, notify string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				user, err := a.Profiles.CreateUser(ctx, tracking.CreateUserRequest{
					Email:               email,
					NotificationAddress: notify,
				})
				if err != nil {
					return err
				}
				return printJSON(user)
			})
		},
	}
	add.Flags().StringVar(&email, "email", "", "Account e-mail")
	add.Flags().StringVar(&notify, "notify", "", "Notification address: Telegram chat id, @channel or e-mail")
	cmd.AddCommand(add)
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage monitored profiles",
	}

	var displayName string
	add := &cobra.Command{
		Use:   "add <user-id> <handle>",
		Short: "Start monitoring a handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				profile, err := a.Profiles.AddProfile(ctx, args[0], tracking.CreateProfileRequest{
					Handle:      args[1],
					DisplayName: displayName,
				})
				if err != nil {
					return err
				}
				return printJSON(profile)
			})
		},
	}
	add.Flags().StringVar(&displayName, "name", "", "Display name")

	list := &cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's profiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				profiles, err := a.Profiles.ListProfiles(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(profiles)
			})
		},
	}

	status := &cobra.Command{
		Use:   "status <profile-id>",
		Short: "Show the monitoring status of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				st, err := a.Monitor.ProfileStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <user-id> <profile-id>",
		Short: "Stop monitoring and delete history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				return a.Profiles.DeleteProfile(ctx, args[0], args[1])
			})
		},
	}

	cmd.AddCommand(add, list, status, remove)
	return cmd
}

func alertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Manage milestone alerts",
	}

	add := &cobra.Command{
		Use:   "add <user-id> <profile-id> <threshold>",
		Short: "Arm an alert for a follower milestone",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("threshold must be an integer: %w", err)
			}
			return run(func(ctx context.Context, a *app.App) error {
				alert, err := a.Alerts.CreateAlert(ctx, args[0], args[1], tracking.CreateAlertRequest{Threshold: threshold})
				if err != nil {
					return err
				}
				return printJSON(alert)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <user-id> <profile-id>",
		Short: "List alerts of a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				alerts, err := a.Alerts.ListAlerts(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(alerts)
			})
		},
	}

	rearm := &cobra.Command{
		Use:   "rearm <user-id> <alert-id>",
		Short: "Re-arm a triggered alert",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				alert, err := a.Alerts.UpdateAlert(ctx, args[0], args[1], tracking.UpdateAlertRequest{Rearm: true})
				if err != nil {
					return err
				}
				return printJSON(alert)
			})
		},
	}

	cmd.AddCommand(add, list, rearm)
	return cmd
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard <user-id>",
		Short: "Show totals and best/worst performers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				dashboard, err := a.Analytics.Dashboard(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(dashboard)
			})
		},
	}
}

func topChangesCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "top-changes <user-id>",
		Short: "Rank a user's profiles by follower movement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				changes, err := a.Analytics.TopChanges(ctx, args[0], hours)
				if err != nil {
					return err
				}
				return printJSON(changes)
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "Comparison period in hours")
	return cmd
}

func growthCmd() *cobra.Command {
	var days int
	var insights bool
	cmd := &cobra.Command{
		Use:   "growth <user-id> <handle>",
		Short: "Growth analysis of one profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				if insights {
					result, err := a.Analytics.Insights(ctx, args[0], args[1], days)
					if err != nil {
						return err
					}
					return printJSON(result)
				}
				result, err := a.Analytics.GrowthAnalysis(ctx, args[0], args[1], days)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Lookback window in days")
	cmd.Flags().BoolVar(&insights, "insights", false, "Print the per-sample series instead")
	return cmd
}
