// Package progressbar prints a textual progress bar to the terminal
package progressbar

import (
	"fmt"
	"strings"
	"time"
)

// ManualProgressBar is a progress bar that redraws only when Display
// is called. It is not safe for concurrent use.
type ManualProgressBar struct {
	width    int
	max      int
	progress int
	start    time.Time
}

// NewManualProgressBar returns a progress bar that is width characters
// wide and reaches 100% after max calls to Increment
func NewManualProgressBar(width, max int) *ManualProgressBar {
	return &ManualProgressBar{
		width: width,
		max:   max,
		start: time.Now(),
	}
}

// Increment advances the progress counter by one completed step
func (p *ManualProgressBar) Increment() {
	if p.progress < p.max {
		p.progress++
	}
}

// Display redraws the progress bar in place on the current terminal
// line, along with the percentage complete and the elapsed time
func (p *ManualProgressBar) Display() {
	fraction := 1.0
	if p.max > 0 {
		fraction = float64(p.progress) / float64(p.max)
	}
	filled := int(fraction * float64(p.width))

	var bar strings.Builder
	bar.WriteString("|")
	bar.WriteString(strings.Repeat("█", filled))
	bar.WriteString(strings.Repeat(" ", p.width-filled))
	fmt.Fprintf(&bar, "| [%.2f%% | elapsed: %v]", fraction*100,
		time.Since(p.start).Truncate(time.Second))

	fmt.Printf("\n\033[1A\033[K%v", bar.String())
}
