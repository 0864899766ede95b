package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/errors"
	"github.com/felixgeelhaar/coffeeclub/internal/gateway"
	"github.com/felixgeelhaar/coffeeclub/internal/session"
	"github.com/felixgeelhaar/coffeeclub/internal/tui"
)

func newAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in and out",
		Long: `Sign in to Coffee Club with your phone number.

A 6-digit code is sent by SMS. Verifying it stores an access and a refresh
token in the credential store; every later command uses them.

Examples:
  coffeeclub auth login
  coffeeclub auth register --phone 5551234567
  coffeeclub auth verify --phone 5551234567 --code 123456
  coffeeclub auth status
  coffeeclub auth logout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Request a code and verify it",
		Long: `Request a verification code and verify it in one step. Missing values are
prompted for when running in a terminal.`,
		RunE: withApp(runAuthLogin),
	}
	loginCmd.Flags().String("phone", "", "phone number")
	loginCmd.Flags().String("code", "", "verification code, when already known")

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Send a verification code to a phone number",
		RunE:  withApp(runAuthRegister),
	}
	registerCmd.Flags().String("phone", "", "phone number (required)")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a code and sign in",
		RunE:  withApp(runAuthVerify),
	}
	verifyCmd.Flags().String("phone", "", "phone number (required)")
	verifyCmd.Flags().String("code", "", "6-digit verification code (required)")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove stored tokens",
		RunE:  withApp(runAuthLogout),
	}
	logoutCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show who is signed in",
		RunE:  withApp(runAuthStatus),
	}

	authCmd.AddCommand(loginCmd, registerCmd, verifyCmd, logoutCmd, statusCmd)
	return authCmd
}

// flagOrPrompt returns the flag value, prompting when it is empty and a
// terminal is attached.
func flagOrPrompt(cmd *cobra.Command, name string, prompt func() (string, error)) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	if v != "" {
		return v, nil
	}
	if !tui.ShouldPrompt() {
		return "", errors.NewInputRequiredError(name)
	}
	return prompt()
}

func runAuthLogin(cmd *cobra.Command, args []string, app *App) error {
	ctx := cmd.Context()

	phone, err := flagOrPrompt(cmd, "phone", func() (string, error) { return tui.PromptPhone(ctx) })
	if err != nil {
		return err
	}
	digits, err := app.Flow.RequestCode(ctx, phone)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Verification code sent to %s\n", digits)

	code, err := flagOrPrompt(cmd, "code", func() (string, error) { return tui.PromptCode(ctx) })
	if err != nil {
		return err
	}
	state, err := app.Flow.Verify(ctx, digits, code)
	if err != nil {
		return verifyErr(err)
	}
	return printSignedIn(app, state)
}

func runAuthRegister(cmd *cobra.Command, args []string, app *App) error {
	phone, _ := cmd.Flags().GetString("phone")
	if phone == "" {
		return errors.NewInputRequiredError("phone")
	}
	digits, err := app.Flow.RequestCode(cmd.Context(), phone)
	if err != nil {
		return err
	}
	return app.Print(map[string]string{"phone": digits, "status": "code_sent"},
		fmt.Sprintf("Verification code sent to %s. Run 'coffeeclub auth verify --phone %s --code <code>'.", digits, digits))
}

func runAuthVerify(cmd *cobra.Command, args []string, app *App) error {
	phone, _ := cmd.Flags().GetString("phone")
	code, _ := cmd.Flags().GetString("code")
	if phone == "" {
		return errors.NewInputRequiredError("phone")
	}
	if code == "" {
		return errors.NewInputRequiredError("code")
	}
	state, err := app.Flow.Verify(cmd.Context(), phone, code)
	if err != nil {
		return verifyErr(err)
	}
	return printSignedIn(app, state)
}

// verifyErr reports a rejected code as such rather than as generic input.
// Backends answer a bad code with either a 4xx validation error or a 401.
func verifyErr(err error) error {
	if apiErr, ok := gateway.AsAPIError(err); ok && (apiErr.IsValidation() || apiErr.IsAuth()) {
		return errors.NewAuthRejectedError(err)
	}
	return err
}

func printSignedIn(app *App, state session.State) error {
	text := fmt.Sprintf("Signed in as %s\n\n%s", state.Profile.DisplayName(),
		tui.RenderRewardCard(state.Profile, app.Config.Rewards.Threshold, app.Styles))
	return app.Print(state.Profile, text)
}

func runAuthLogout(cmd *cobra.Command, args []string, app *App) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes && tui.ShouldPrompt() {
		ok, err := tui.Confirm(cmd.Context(), "Sign out of Coffee Club?", true)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	if err := app.Flow.Logout(cmd.Context()); err != nil {
		return err
	}
	return app.Print(map[string]bool{"authenticated": false}, "Signed out.")
}

type authStatus struct {
	Authenticated bool       `json:"authenticated" yaml:"authenticated"`
	CustomerID    string     `json:"customerId,omitempty" yaml:"customer_id,omitempty"`
	Phone         string     `json:"phone,omitempty" yaml:"phone,omitempty"`
	Name          string     `json:"name,omitempty" yaml:"name,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"`
}

func runAuthStatus(cmd *cobra.Command, args []string, app *App) error {
	ctx := cmd.Context()
	ok, err := app.Flow.Restore(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return app.Print(authStatus{}, "Not signed in. Run 'coffeeclub auth login'.")
	}

	p := app.Session.Profile()
	status := authStatus{Authenticated: true, CustomerID: p.ID, Phone: p.Phone, Name: p.DisplayName()}
	text := fmt.Sprintf("Signed in as %s (%s)", status.Name, status.Phone)
	if token, ok, _ := app.Keys.AccessToken(ctx); ok {
		if exp, ok := gateway.TokenExpiry(token); ok {
			exp = exp.UTC()
			status.ExpiresAt = &exp
			text += fmt.Sprintf("\nAccess token expires %s", exp.Format(time.RFC3339))
		}
	}
	return app.Print(status, text)
}
