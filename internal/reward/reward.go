// Package reward derives loyalty progress from the customer's coffee count.
// Nothing here is stored; callers recompute on every read.
package reward

// DefaultThreshold is the number of coffees per free coffee.
const DefaultThreshold = 10

// View is the derived reward state for one coffee count.
type View struct {
	Coffees    int // current, clamped to >= 0
	Threshold  int
	Progress   int // coffees toward the next free one, in [0, Threshold)
	FreeEarned int // complete cycles
	Remaining  int // coffees until the next free one, in (0, Threshold]
}

// Derive computes the view for currentCoffees. A threshold <= 0 falls back
// to DefaultThreshold and negative counts are treated as zero.
func Derive(currentCoffees, threshold int) View {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if currentCoffees < 0 {
		currentCoffees = 0
	}

	progress := currentCoffees % threshold
	return View{
		Coffees:    currentCoffees,
		Threshold:  threshold,
		Progress:   progress,
		FreeEarned: currentCoffees / threshold,
		Remaining:  threshold - progress,
	}
}

// Percent is Progress as a fraction in [0, 1).
func (v View) Percent() float64 {
	if v.Threshold <= 0 {
		return 0
	}
	return float64(v.Progress) / float64(v.Threshold)
}

// CanRedeem reports whether at least one free coffee is available.
func (v View) CanRedeem() bool {
	return v.FreeEarned > 0
}
