package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/device"
	"github.com/felixgeelhaar/coffeeclub/internal/errors"
	"github.com/felixgeelhaar/coffeeclub/internal/gateway"
)

func newDeviceCmd() *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Manage this installation's device registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show the registration payload for this installation",
		RunE:  withApp(runDeviceInfo),
	}

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register this installation with the loyalty API",
		Long: `Register this installation. Registration happens once; later calls do
nothing unless --force is given.`,
		RunE: withApp(runDeviceRegister),
	}
	registerCmd.Flags().Bool("force", false, "register again even if already registered")

	deviceCmd.AddCommand(infoCmd, registerCmd)
	return deviceCmd
}

type deviceStatus struct {
	device.Info `yaml:",inline"`
	Registered  bool       `json:"registered" yaml:"registered"`
	IssuedAt    *time.Time `json:"issuedAt,omitempty" yaml:"issued_at,omitempty"`
}

func runDeviceInfo(cmd *cobra.Command, args []string, app *App) error {
	ctx := cmd.Context()
	info, err := app.Devices.Info(ctx)
	if err != nil {
		return err
	}
	registered, err := app.Devices.Registered(ctx)
	if err != nil {
		return err
	}
	status := deviceStatus{Info: info, Registered: registered}
	if at, ok := device.IssuedAt(info.DeviceID); ok {
		at = at.UTC()
		status.IssuedAt = &at
	}
	return app.Print(status, renderDevice(status))
}

func renderDevice(s deviceStatus) string {
	val := func(p *string) string {
		if p == nil || *p == "" {
			return "-"
		}
		return *p
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Device ID:  %s\n", s.DeviceID)
	fmt.Fprintf(&b, "Name:       %s\n", val(s.Name))
	fmt.Fprintf(&b, "Type:       %s\n", val(s.Type))
	fmt.Fprintf(&b, "OS:         %s %s\n", val(s.OS), val(s.OSVersion))
	fmt.Fprintf(&b, "Brand:      %s\n", val(s.Brand))
	fmt.Fprintf(&b, "Model:      %s\n", val(s.Model))
	fmt.Fprintf(&b, "Virtual:    %t\n", s.IsSimulator)
	fmt.Fprintf(&b, "Registered: %t", s.Registered)
	return b.String()
}

func runDeviceRegister(cmd *cobra.Command, args []string, app *App) error {
	ctx := cmd.Context()
	if err := app.RequireSession(ctx); err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if force {
		if err := app.Devices.Reset(ctx); err != nil {
			return err
		}
	}
	registered, err := app.Devices.RegisterIfNeeded(ctx)
	if _, isAPI := gateway.AsAPIError(err); err != nil && !isAPI {
		return errors.Wrap(errors.ErrCodeDeviceRegistration, "device registration failed", err).
			WithSuggestion("Try again later with 'coffeeclub device register'")
	}
	if err != nil {
		return err
	}

	id, err := app.Devices.ID(ctx)
	if err != nil {
		return err
	}
	text := "Device already registered."
	if registered {
		text = "Device registered."
	}
	return app.Print(map[string]any{"deviceId": id, "registered": true, "changed": registered}, text)
}
