package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/config"
	"github.com/felixgeelhaar/coffeeclub/internal/health"
	"github.com/felixgeelhaar/coffeeclub/internal/loyaltytwin"
	"github.com/felixgeelhaar/coffeeclub/internal/metrics"
	"github.com/felixgeelhaar/coffeeclub/internal/server"
	"github.com/felixgeelhaar/coffeeclub/internal/version"
)

// EnvTwinKey holds the twin's token signing key. Without it a random key is
// used and tokens do not survive a restart.
const EnvTwinKey = "COFFEECLUB_TWIN_KEY"

func newTwinCmd() *cobra.Command {
	twinCmd := &cobra.Command{
		Use:    "twin",
		Short:  "Run an in-memory loyalty API for development",
		Hidden: true,
		Long: `Run an in-memory stand-in for the loyalty API. Point the client at it with
--api-url or COFFEECLUB_API_URL.

The twin serves the customer API, an /admin surface for seeding orders
and injecting faults, probes on /livez, /readyz and /startupz, and
Prometheus metrics on /metrics. Stop it
with Ctrl+C; open connections are drained before exit.

Example:
  coffeeclub twin --addr 127.0.0.1:5050 --code 123456
  coffeeclub --api-url http://127.0.0.1:5050 auth login`,
		RunE: runTwin,
	}
	twinCmd.Flags().String("addr", "127.0.0.1:5050", "address to listen on")
	twinCmd.Flags().String("code", "", "issue this verification code for every registration")
	twinCmd.Flags().String("issuer", "", "JWT issuer claim")
	twinCmd.Flags().Duration("access-ttl", time.Hour, "access token lifetime")
	twinCmd.Flags().Duration("refresh-ttl", 7*24*time.Hour, "refresh token lifetime")
	twinCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "maximum time to drain connections")
	return twinCmd
}

type twinChecker struct {
	twin *loyaltytwin.Twin
}

func (c twinChecker) Name() string { return "twin" }

func (c twinChecker) Check(ctx context.Context) *health.Result {
	snap := c.twin.Store().Snapshot()
	return health.Healthy("serving").
		WithDetail("customers", len(snap.Customers)).
		WithDetail("pending_codes", len(snap.Pending))
}

func runTwin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	addr, _ := flags.GetString("addr")
	code, _ := flags.GetString("code")
	issuer, _ := flags.GetString("issuer")
	accessTTL, _ := flags.GetDuration("access-ttl")
	refreshTTL, _ := flags.GetDuration("refresh-ttl")
	shutdownTimeout, _ := flags.GetDuration("shutdown-timeout")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !flags.Changed("log-level") && os.Getenv(config.EnvLogLevel) == "" {
		cfg.Log.Level = "info"
	}
	app := &App{Config: cfg}
	logger, err := app.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	twin, err := loyaltytwin.New(loyaltytwin.Options{
		Issuer:     issuer,
		SigningKey: []byte(os.Getenv(EnvTwinKey)),
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		FixedCode:  code,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	pm := health.NewProbeManager(version.GetInfo().Version)
	pm.AddChecker(twinChecker{twin: twin})

	reg, m := metrics.NewServerRegistry()
	srv := server.NewServer(pm, m.Middleware(twin), server.Config{
		Address:         addr,
		ShutdownTimeout: shutdownTimeout,
		Logger:          logger,
		Metrics:         metrics.HandlerFor(reg),
	})
	ln, err := srv.Listen()
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Loyalty API twin listening on http://%s\n", ln.Addr())
	if code != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Every verification code is %s\n", code)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// ctx is already cancelled; draining gets a fresh deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Twin stopped")
	return nil
}
