package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/account"
	"github.com/felixgeelhaar/coffeeclub/internal/apispec"
	"github.com/felixgeelhaar/coffeeclub/internal/auth"
	"github.com/felixgeelhaar/coffeeclub/internal/config"
	"github.com/felixgeelhaar/coffeeclub/internal/device"
	"github.com/felixgeelhaar/coffeeclub/internal/errors"
	"github.com/felixgeelhaar/coffeeclub/internal/feedback"
	"github.com/felixgeelhaar/coffeeclub/internal/gateway"
	"github.com/felixgeelhaar/coffeeclub/internal/health"
	"github.com/felixgeelhaar/coffeeclub/internal/log"
	"github.com/felixgeelhaar/coffeeclub/internal/metrics"
	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
	"github.com/felixgeelhaar/coffeeclub/internal/session"
	"github.com/felixgeelhaar/coffeeclub/internal/tui"
	"github.com/felixgeelhaar/coffeeclub/internal/ux"
	"github.com/felixgeelhaar/coffeeclub/internal/vault"
	"github.com/felixgeelhaar/coffeeclub/internal/version"
)

// openStore opens the configured credential backend. Tests replace it to
// share one store across invocations.
var openStore = func(cfg *config.Config) (securestore.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return securestore.NewMemoryStore(), nil
	case config.BackendVault:
		client, err := vault.NewClient(vault.Config{
			Address:   firstNonEmpty(cfg.Store.Vault.Address, os.Getenv("VAULT_ADDR")),
			Token:     os.Getenv("VAULT_TOKEN"),
			MountPath: cfg.Store.Vault.Mount,
			Namespace: cfg.Store.Vault.Namespace,
		})
		if err != nil {
			return nil, fmt.Errorf("vault: %w", err)
		}
		return securestore.NewVaultStore(client, cfg.Store.Vault.Prefix), nil
	default:
		path, err := cfg.StorePath()
		if err != nil {
			return nil, err
		}
		return securestore.NewFileStore(securestore.FileStoreOptions{
			Path:       path,
			Passphrase: cfg.Passphrase(),
		})
	}
}

// loadConfig loads the file named by --config and applies the flag
// overrides, which take precedence over the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, err
	}
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cc.ConfigPath)
	if err != nil {
		return nil, configErr(err)
	}

	if cc.APIURL != "" {
		cfg.API.BaseURL = cc.APIURL
	}
	if cc.LogLevel != "" {
		cfg.Log.Level = cc.LogLevel
	}
	if cc.Format != "" {
		cfg.Defaults.Format = cc.Format
	}
	if cc.NoColor {
		cfg.Defaults.NoColor = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, configErr(err)
	}
	return cfg, nil
}

func configErr(err error) error {
	var verr *config.ValidationError
	if stderrors.As(err, &verr) {
		e := errors.NewConfigInvalidError(strings.Join(verr.Problems, "; "))
		e.Cause = err
		return e
	}
	return errors.Wrap(errors.ErrCodeConfigRead, "cannot load configuration", err).
		WithSuggestion("Check the file with 'coffeeclub config path' and fix the YAML")
}

// App is everything a command needs, wired from configuration.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Backend  securestore.Store
	Keys     *securestore.Keychain
	Client   *gateway.Client
	Accounts *account.Service
	Devices  *device.Service
	Feedback *feedback.Service
	API      *health.API
	Session  *session.Session
	Flow     *auth.Flow
	Styles   tui.Styles
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	out     io.Writer
	closers []func() error
}

// newApp wires config → logger → store → keychain → gateway → services →
// session and sign-in flow.
func newApp(cmd *cobra.Command) (*App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Defaults.NoColor || os.Getenv("NO_COLOR") != "" {
		tui.DisableColor()
	}

	app := &App{Config: cfg, out: cmd.OutOrStdout(), Styles: tui.DefaultStyles()}
	app.Registry, app.Metrics = metrics.NewRegistry()

	logger, err := app.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	app.Logger = logger
	log.SetDefaultLogger(logger)

	backend, err := openStore(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Backend = backend

	policy, err := securestore.ParseReadPolicy(cfg.Store.ReadPolicy)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Keys = securestore.NewKeychain(backend,
		securestore.WithReadPolicy(policy),
		securestore.WithLogger(logger))

	gcfg := gateway.Config{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout,
		RefreshPath: cfg.API.RefreshPath,
		Tokens:      app.Keys,
		Logger:      logger,
		Observer:    app.Metrics,
	}
	if cfg.API.ValidateRequests {
		validator, err := apispec.Load()
		if err != nil {
			app.Close()
			return nil, err
		}
		gcfg.Validator = validator
	}
	client, err := gateway.New(gcfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Client = client

	app.Accounts = account.NewService(client)
	app.Devices = device.NewService(client, app.Keys, device.WithLogger(logger))
	app.Feedback = feedback.NewService(client)
	app.API = health.NewAPI(client)
	app.Session = session.New(session.WithThreshold(cfg.Rewards.Threshold))

	opts := auth.Options{Logger: logger}
	if cfg.Device.AutoRegister {
		opts.Devices = app.Devices
	}
	app.Flow = auth.NewFlow(app.Accounts, app.Keys, app.Session, opts)
	return app, nil
}

func (a *App) newLogger(stderr io.Writer) (*log.Logger, error) {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(a.Config.Log.Level)
	lc.Format = log.ParseFormat(a.Config.Log.Format)
	lc.ServiceVersion = version.Version
	lc.Output = log.NewOutput(stderr)

	dir, err := a.Config.LogDir()
	if err != nil {
		return nil, err
	}
	if dir != "" {
		out, err := log.OutputRotatingFile(dir, a.Config.Log.MaxAge)
		if err != nil {
			return nil, err
		}
		lc.Output = out
		a.closers = append(a.closers, out.Close)
	}
	return log.New(lc), nil
}

// Close releases log files.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// RequireSession restores the stored sign-in or fails with
// auth.ErrNotAuthenticated.
func (a *App) RequireSession(ctx context.Context) error {
	ok, err := a.Flow.Restore(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrNotAuthenticated
	}
	return nil
}

// Print writes data with the configured formatter. In text mode text is
// printed instead when it is not empty.
func (a *App) Print(data any, text string) error {
	return printOutput(a.out, a.Config.Defaults.Format, data, text)
}

func printOutput(w io.Writer, format string, data any, text string) error {
	if (format == ux.FormatText || format == "") && text != "" {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	f, err := ux.NewFormatter(format, &ux.FormatterOptions{Writer: w})
	if err != nil {
		return err
	}
	return f.Format(data)
}

// withApp wraps a RunE body with wiring, metrics and cleanup.
func withApp(run func(cmd *cobra.Command, args []string, app *App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		start := time.Now()
		err = ux.EnhanceError(run(cmd, args, app), ux.ErrorContext{BaseURL: app.Config.API.BaseURL})
		app.recordCommand(cmd.CommandPath(), time.Since(start), err)
		return err
	}
}

// recordCommand records the run and flushes the registry to the metrics
// textfile when one is configured. A failed flush is logged only.
func (a *App) recordCommand(command string, d time.Duration, err error) {
	var code string
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		code = string(coded.Code)
	}
	a.Metrics.RecordCommand(command, d, err, code)

	path, perr := a.Config.MetricsTextfile()
	if perr == nil && path != "" {
		perr = metrics.WriteTextfile(path, a.Registry)
	}
	if perr != nil {
		a.Logger.Warn("metrics textfile not written", "error", perr.Error())
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
