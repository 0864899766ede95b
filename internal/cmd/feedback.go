package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/tui"
)

func newFeedbackCmd() *cobra.Command {
	feedbackCmd := &cobra.Command{
		Use:   "feedback",
		Short: "Send feedback to the coffee shop",
		Long: `Send feedback as the signed-in customer. Missing fields are prompted for
when running in a terminal.

Example:
  coffeeclub feedback --subject "Great latte" --message "Best one in town."`,
		RunE: withApp(runFeedback),
	}
	feedbackCmd.Flags().StringP("subject", "s", "", "feedback subject")
	feedbackCmd.Flags().StringP("message", "m", "", "feedback text")
	return feedbackCmd
}

func runFeedback(cmd *cobra.Command, args []string, app *App) error {
	ctx := cmd.Context()
	if err := app.RequireSession(ctx); err != nil {
		return err
	}

	subject, err := flagOrPrompt(cmd, "subject", func() (string, error) {
		return tui.PromptText(ctx, "Subject", "What is it about?")
	})
	if err != nil {
		return err
	}
	message, err := flagOrPrompt(cmd, "message", func() (string, error) {
		return tui.PromptLongText(ctx, "Message", "Tell us more")
	})
	if err != nil {
		return err
	}

	if err := app.Feedback.Send(ctx, subject, message); err != nil {
		return err
	}
	return app.Print(map[string]string{"status": "sent"}, "Thanks! Your feedback was sent.")
}
