package cli

import (
	"strings"
	"time"
)

// renderTimeline draws offset as a bar scaled to emergency, with the
// aura threshold marked.
func renderTimeline(offset, aura, emergency time.Duration, width int) string {
	if emergency <= 0 || width <= 0 {
		return ""
	}
	cell := func(d time.Duration) int {
		n := int(float64(d) / float64(emergency) * float64(width))
		if n > width {
			n = width
		}
		if n < 0 {
			n = 0
		}
		return n
	}
	filled, mark := cell(offset), cell(aura)

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == mark:
			b.WriteString("|")
		case i < filled:
			b.WriteString("█")
		default:
			b.WriteString("░")
		}
	}
	return b.String()
}
