package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/reward"
	"github.com/felixgeelhaar/coffeeclub/internal/tui"
)

type rewardStatus struct {
	Coffees    int     `json:"currentCoffees" yaml:"current_coffees"`
	Threshold  int     `json:"threshold" yaml:"threshold"`
	Progress   int     `json:"progress" yaml:"progress"`
	Remaining  int     `json:"remaining" yaml:"remaining"`
	FreeEarned int     `json:"freeEarned" yaml:"free_earned"`
	Percent    float64 `json:"percent" yaml:"percent"`
	Total      *int    `json:"totalCoffees,omitempty" yaml:"total_coffees,omitempty"`
}

func newRewardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rewards",
		Aliases: []string{"card"},
		Short:   "Show your loyalty card",
		Long: `Show progress toward your next free coffee. Every ` +
			`rewards.threshold coffees (10 by default) earn one free coffee.`,
		RunE: withApp(runRewards),
	}
}

func runRewards(cmd *cobra.Command, args []string, app *App) error {
	if err := app.RequireSession(cmd.Context()); err != nil {
		return err
	}
	p := app.Session.Profile()
	v := reward.Derive(p.CurrentCoffees, app.Config.Rewards.Threshold)
	status := rewardStatus{
		Coffees:    v.Coffees,
		Threshold:  v.Threshold,
		Progress:   v.Progress,
		Remaining:  v.Remaining,
		FreeEarned: v.FreeEarned,
		Percent:    v.Percent(),
		Total:      p.TotalCoffees,
	}
	return app.Print(status, tui.RenderRewardCard(p, app.Config.Rewards.Threshold, app.Styles))
}
