package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/socialpulse/followwatch/internal/app"
	"github.com/socialpulse/followwatch/internal/models"
	"github.com/socialpulse/followwatch/internal/notifications"
)

func cycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Monitoring cycles",
	}

	var asJSON bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one monitoring cycle over all enabled profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				report := a.Monitor.RunCycle(ctx)
				if asJSON {
					return printJSON(report)
				}
				printReport(os.Stdout, report)
				if report.Error != "" {
					return fmt.Errorf("cycle failed: %s", report.Error)
				}
				return nil
			})
		},
	}
	runCmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.AddCommand(runCmd)
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <profile-id>",
		Short: "Check one profile now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				outcome, err := a.Monitor.CheckProfile(ctx, args[0])
				if outcome != nil {
					if printErr := printJSON(outcome); printErr != nil {
						return printErr
					}
				}
				return err
			})
		},
	}
}

func pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete samples older than RETENTION_DAYS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				removed, err := a.Monitor.PruneSamples(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d samples\n", removed)
				return nil
			})
		},
	}
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification channels",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test <address>",
		Short: "Send a sample milestone notification to a chat id, @channel or e-mail address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				router := app.NewNotifier(a.Config)
				if router == nil {
					return fmt.Errorf("no notification channel configured")
				}

				sendCtx, cancel := context.WithTimeout(ctx, a.Config.NotifyTimeout())
				defer cancel()
				if !router.Notify(sendCtx, args[0], "followwatch", 1000, 1234) {
					return fmt.Errorf("notification to %s was not delivered", args[0])
				}
				fmt.Println("✅ Notification sent")
				return nil
			})
		},
	})
	return cmd
}

// printReport writes a terminal summary of a cycle report
func printReport(w io.Writer, report *models.CycleReport) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "📊 MONITORING CYCLE")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "🕒 Started:  %s\n", report.StartedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(w, "⏱  Duration: %s\n", report.Duration)
	fmt.Fprintf(w, "✔  Checked: %d   Updated: %d   Not found: %d   Errors: %d   Alerts: %d\n",
		report.Checked, report.Updated, report.NotFound, report.Errored, report.AlertsTriggered)

	if report.Error != "" {
		fmt.Fprintf(w, "\n❌ %s\n", report.Error)
	}

	if len(report.Profiles) > 0 {
		fmt.Fprintln(w, "\n📍 Profiles:")
		for _, p := range report.Profiles {
			line := fmt.Sprintf("   • %-30s %-10s", "@"+p.Handle, p.Status)
			switch p.Status {
			case models.StatusUpdated, models.StatusUnchanged:
				line += " " + notifications.FormatCount(p.FollowerCount)
				if p.PreviousCount != nil && *p.PreviousCount != p.FollowerCount {
					line += fmt.Sprintf(" (%+d)", p.FollowerCount-*p.PreviousCount)
				}
			case models.StatusError:
				line += " " + p.Error
			}
			if p.AlertsTriggered > 0 {
				line += fmt.Sprintf(" 🎉 %d alert(s)", p.AlertsTriggered)
			}
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Finished at %s\n", report.FinishedAt.Format(time.RFC3339))
}
