package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type qrOutput struct {
	CustomerID string    `json:"customerId" yaml:"customer_id"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	Hash       string    `json:"hash" yaml:"hash"`
	Payload    string    `json:"payload" yaml:"payload"`
}

func newQRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "qr",
		Short: "Print the code to scan at the counter",
		Long: `Request a fresh signed QR payload for the signed-in customer. The payload
is only valid for a short time; generate a new one for each visit.`,
		RunE: withApp(runQR),
	}
}

func runQR(cmd *cobra.Command, args []string, app *App) error {
	ctx := cmd.Context()
	if err := app.RequireSession(ctx); err != nil {
		return err
	}
	qr, err := app.Accounts.GenerateQR(ctx)
	if err != nil {
		return err
	}
	out := qrOutput{
		CustomerID: qr.CustomerID,
		Timestamp:  qr.Timestamp.Time,
		Hash:       qr.Hash,
		Payload:    qr.Payload(),
	}
	text := fmt.Sprintf("%s\n\n%s\n%s",
		app.Styles.Title.Render("Scan at the counter"),
		app.Styles.Card.Render(out.Payload),
		app.Styles.Muted.Render("Generated "+out.Timestamp.Local().Format(time.Kitchen)))
	return app.Print(out, text)
}
