package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/tui"
)

func newOrdersCmd() *cobra.Command {
	ordersCmd := &cobra.Command{
		Use:   "orders",
		Short: "Show your order history",
		Long: `Show your order history, newest first.

With --interactive the history opens in a live view; press r to reload
and q to quit.`,
		RunE: withApp(runOrders),
	}
	ordersCmd.Flags().BoolP("interactive", "i", false, "open the live order view")
	return ordersCmd
}

func runOrders(cmd *cobra.Command, args []string, app *App) error {
	ctx := cmd.Context()
	if err := app.RequireSession(ctx); err != nil {
		return err
	}

	interactive, _ := cmd.Flags().GetBool("interactive")
	if interactive {
		if !tui.IsInteractive() {
			return fmt.Errorf("--interactive needs a terminal")
		}
		model := tui.NewOrdersModel(ctx, app.Flow.RefreshOrders, app.Session.Snapshot().Orders)
		p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(cmd.OutOrStdout()))
		_, err := p.Run()
		return err
	}

	orders, err := app.Flow.RefreshOrders(ctx)
	if err != nil {
		return err
	}
	return app.Print(orders, tui.RenderOrders(orders, app.Styles))
}
