package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/account"
	"github.com/felixgeelhaar/coffeeclub/internal/errors"
	"github.com/felixgeelhaar/coffeeclub/internal/tui"
)

func newProfileCmd() *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your customer profile",
		RunE:  withApp(runProfileShow),
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		RunE:  withApp(runProfileShow),
	}

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Edit your profile",
		Long: `Edit your profile. Fields not given keep their current value; pass an empty
value (--email "") to clear one. Without flags an interactive form is shown.

Examples:
  coffeeclub profile update --first-name Ada --last-name Lovelace
  coffeeclub profile update --birth-date 1815-12-10
  coffeeclub profile update`,
		RunE: withApp(runProfileUpdate),
	}
	updateCmd.Flags().String("first-name", "", "first name")
	updateCmd.Flags().String("last-name", "", "last name")
	updateCmd.Flags().String("birth-date", "", "birth date (YYYY-MM-DD)")
	updateCmd.Flags().String("email", "", "email address")

	profileCmd.AddCommand(showCmd, updateCmd)
	return profileCmd
}

func runProfileShow(cmd *cobra.Command, args []string, app *App) error {
	if err := app.RequireSession(cmd.Context()); err != nil {
		return err
	}
	p := app.Session.Profile()
	return app.Print(p, renderProfile(p, app))
}

func renderProfile(p *account.Profile, app *App) string {
	s := app.Styles
	row := func(label string, value *string) string {
		v := "-"
		if value != nil && *value != "" {
			v = *value
		}
		return fmt.Sprintf("%s %s", s.Label.Render(fmt.Sprintf("%-11s", label)), s.Value.Render(v))
	}

	lines := []string{
		s.Title.Render(p.DisplayName()),
		row("Phone", &p.Phone),
		row("First name", p.FirstName),
		row("Last name", p.LastName),
		row("Email", p.Email),
		row("Birth date", p.BirthDate),
	}
	if p.LastOrderDate != nil && !p.LastOrderDate.IsZero() {
		last := p.LastOrderDate.Format(tui.OrderDateFormat)
		lines = append(lines, row("Last order", &last))
	}
	return strings.Join(lines, "\n")
}

var profileFlags = []string{"first-name", "last-name", "birth-date", "email"}

func runProfileUpdate(cmd *cobra.Command, args []string, app *App) error {
	ctx := cmd.Context()
	if err := app.RequireSession(ctx); err != nil {
		return err
	}
	current := app.Session.Profile()

	changed := false
	for _, name := range profileFlags {
		if cmd.Flags().Changed(name) {
			changed = true
		}
	}

	var update account.CustomerUpdate
	switch {
	case changed:
		u, err := profileUpdateFromFlags(cmd, current)
		if err != nil {
			return err
		}
		update = u
	case tui.ShouldPrompt():
		u, err := tui.PromptProfile(ctx, current)
		if err != nil {
			return err
		}
		update = u
	default:
		return errors.New(errors.ErrCodeInputRequired, "no profile changes given").
			WithSuggestion("Pass --first-name, --last-name, --birth-date or --email")
	}

	updated, err := app.Flow.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}
	return app.Print(updated, "Profile updated.\n\n"+renderProfile(updated, app))
}

// profileUpdateFromFlags starts from the current values so unset flags are
// not sent as null.
func profileUpdateFromFlags(cmd *cobra.Command, current *account.Profile) (account.CustomerUpdate, error) {
	update := account.UpdateFromProfile(current)
	flags := cmd.Flags()

	if flags.Changed("first-name") {
		v, _ := flags.GetString("first-name")
		update.FirstName = account.Optional(v)
	}
	if flags.Changed("last-name") {
		v, _ := flags.GetString("last-name")
		update.LastName = account.Optional(v)
	}
	if flags.Changed("birth-date") {
		v, _ := flags.GetString("birth-date")
		if err := tui.ValidateBirthDate(v); err != nil {
			return update, errors.Wrap(errors.ErrCodeInputInvalid, "invalid --birth-date", err)
		}
		update.BirthDate = account.Optional(v)
	}
	if flags.Changed("email") {
		v, _ := flags.GetString("email")
		if err := tui.ValidateEmail(v); err != nil {
			return update, errors.Wrap(errors.ErrCodeInputInvalid, "invalid --email", err)
		}
		update.Email = account.Optional(v)
	}
	return update, nil
}
