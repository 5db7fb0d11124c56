// Package progress renders generation progress for interactive runs: a
// carriage-return bar with ETA on terminals, decile lines on plain writers.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// Mode selects how progress is rendered.
type Mode string

const (
	// ModeAuto enables the bar only when the writer is a terminal.
	ModeAuto Mode = "auto"
	// ModePlain prints one line per decile, suitable for logs and CI.
	ModePlain Mode = "plain"
	// ModeOff disables all output.
	ModeOff Mode = "off"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModePlain, ModeOff:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown progress mode %q (want auto, plain, or off)", s)
	}
}

const barWidth = 24

// Tracker renders evolution progress for a fixed generation budget.
type Tracker struct {
	w          io.Writer
	total      int
	tty        bool
	enabled    bool
	start      time.Time
	lastDecile int
}

// NewTracker builds a tracker writing to w. In ModeAuto the bar activates
// only when w is a terminal.
func NewTracker(w io.Writer, total int, mode Mode) *Tracker {
	t := &Tracker{w: w, total: total, start: time.Now(), lastDecile: -1}
	switch mode {
	case ModeOff:
	case ModePlain:
		t.enabled = true
	default:
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			t.enabled = true
			t.tty = true
		}
	}
	return t
}

// Generation reports one completed generation.
func (t *Tracker) Generation(gen int, best float64, feasible int) {
	if !t.enabled || t.total <= 0 {
		return
	}
	pct := gen * 100 / t.total
	if t.tty {
		filled := barWidth * gen / t.total
		bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
		fmt.Fprintf(t.w, "\r[%s] %3d%% gen %d/%d best=%.2f feasible=%d eta=%s",
			bar, pct, gen, t.total, best, feasible, t.eta(gen))
		return
	}
	decile := pct / 10
	if decile == t.lastDecile {
		return
	}
	t.lastDecile = decile
	fmt.Fprintf(t.w, "gen %d/%d (%d%%) best=%.2f feasible=%d\n", gen, t.total, pct, best, feasible)
}

// Done clears the bar and prints the closing summary line.
func (t *Tracker) Done(best float64, feasible bool) {
	if !t.enabled {
		return
	}
	if t.tty {
		fmt.Fprintf(t.w, "\r%s\r", strings.Repeat(" ", barWidth+50))
	}
	fmt.Fprintf(t.w, "completed in %s best=%.2f feasible=%v\n",
		time.Since(t.start).Round(time.Millisecond), best, feasible)
}

func (t *Tracker) eta(gen int) string {
	if gen <= 0 {
		return "--"
	}
	per := time.Since(t.start) / time.Duration(gen)
	return (per * time.Duration(t.total-gen)).Round(time.Millisecond).String()
}
