package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/coffeeclub/internal/account"
	"github.com/felixgeelhaar/coffeeclub/internal/reward"
)

// CardWidth is the width of the reward progress bar in cells.
const CardWidth = 30

// RenderRewardCard draws the loyalty card for profile. The reward state is
// derived from CurrentCoffees on every call; a threshold <= 0 means
// reward.DefaultThreshold.
func RenderRewardCard(profile *account.Profile, threshold int, styles Styles) string {
	if profile == nil {
		return styles.Card.Render(styles.Muted.Render("Not signed in"))
	}
	v := reward.Derive(profile.CurrentCoffees, threshold)

	bar := progress.New(
		progress.WithWidth(CardWidth),
		progress.WithGradient(barEmpty, barFull),
		progress.WithoutPercentage(),
		progress.WithColorProfile(lipgloss.ColorProfile()),
	)

	var b strings.Builder
	b.WriteString(styles.Title.Render("☕ Coffee Club"))
	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render(profile.DisplayName()))
	b.WriteString("\n\n")
	b.WriteString(bar.ViewAs(v.Percent()))
	b.WriteString("\n")
	b.WriteString(styles.Value.Render(fmt.Sprintf("%d/%d", v.Progress, v.Threshold)))
	b.WriteString(styles.Muted.Render(fmt.Sprintf("  %s until your next free coffee", plural(v.Remaining, "coffee"))))

	if v.CanRedeem() {
		b.WriteString("\n\n")
		b.WriteString(styles.Success.Render(fmt.Sprintf("%s ready to redeem", plural(v.FreeEarned, "free coffee"))))
	}
	if profile.TotalCoffees != nil {
		b.WriteString("\n")
		b.WriteString(styles.Label.Render(fmt.Sprintf("%d coffees all time", *profile.TotalCoffees)))
	}

	return styles.Card.Render(b.String())
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
