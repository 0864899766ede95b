package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/health"
)

func newHealthCmd() *cobra.Command {
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check the API, the credential store and the stored session",
		Long: `Run every health check in parallel and print one line per check.

The command exits non-zero when any check is unhealthy. A signed-out
session is reported as degraded, not unhealthy.`,
		RunE: withApp(runHealthCheck),
	}
	healthCmd.Flags().Duration("timeout", health.DefaultTimeout, "timeout for each check")

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Print the environment the API reports about itself",
		RunE:  withApp(runHealthEnv),
	}

	healthCmd.AddCommand(envCmd)
	return healthCmd
}

func runHealthCheck(cmd *cobra.Command, args []string, app *App) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")

	manager := health.NewManager().WithTimeout(timeout)
	manager.AddChecker(health.NewAPIChecker(app.API))
	manager.AddChecker(health.NewStoreChecker(app.Config.Store.Backend, app.Backend))
	manager.AddChecker(health.NewSessionChecker(app.Keys))

	report := manager.Run(cmd.Context())
	if err := app.Print(report, renderReport(report, app)); err != nil {
		return err
	}
	if report.Status == health.StatusUnhealthy {
		return fmt.Errorf("health check failed: %s", report.Status)
	}
	return nil
}

func renderReport(report health.Report, app *App) string {
	s := app.Styles
	mark := func(status health.Status) string {
		switch status {
		case health.StatusHealthy:
			return s.Success.Render("✓")
		case health.StatusDegraded:
			return s.Muted.Render("!")
		default:
			return s.Error.Render("✗")
		}
	}

	var b strings.Builder
	for _, c := range report.Checks {
		fmt.Fprintf(&b, "%s %-8s %s", mark(c.Status), c.Name, c.Message)
		if c.Latency > 0 {
			b.WriteString(s.Muted.Render(fmt.Sprintf(" (%s)", c.Latency.Round(time.Millisecond))))
		}
		b.WriteString("\n")

		keys := make([]string, 0, len(c.Details))
		for k := range c.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s\n", s.Muted.Render(fmt.Sprintf("%s: %v", k, c.Details[k])))
		}
	}
	fmt.Fprintf(&b, "\nOverall: %s", report.Status)
	return b.String()
}

func runHealthEnv(cmd *cobra.Command, args []string, app *App) error {
	env, err := app.API.Env(cmd.Context())
	if err != nil {
		return err
	}
	return app.Print(env, "")
}
