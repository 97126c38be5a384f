/*------------------------------------------------------------------
 *
 * Purpose:	Periodic lamp ticker task. Every 10ms it advances through
 *		the pattern list, computes the minimal set of GPIO lines
 *		that actually need to change (against a shadow register),
 *		and writes set-then-barrier-then-clear so lamps never
 *		pass through an unintended state.
 *
 *---------------------------------------------------------------*/
package ticker

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/gsebik/lampshow/internal/gpio"
	"github.com/gsebik/lampshow/internal/pattern"
	"github.com/gsebik/lampshow/internal/signalstop"
)

// Period is the ticker's grid: one tick every 10ms (spec §4.6).
const Period = 10 * time.Millisecond

// Task drives a GPIO writer through a pattern list on a fixed grid.
type Task struct {
	Win      gpio.Writer
	Lines    [gpio.LampCount]uint
	Patterns []pattern.Step
	Stop     *signalstop.Flag
	Log      *log.Logger

	mask  uint32
	shadow uint32

	currentIndex   int
	ticksRemaining int
}

// New builds a lamp ticker task over the given pattern list.
func New(win gpio.Writer, lines [gpio.LampCount]uint, patterns []pattern.Step, stop *signalstop.Flag, lg *log.Logger) *Task {
	return &Task{
		Win:      win,
		Lines:    lines,
		Patterns: patterns,
		Stop:     stop,
		Log:      lg,
		mask:     gpio.Mask(lines),
	}
}

// Run blocks until the pattern list is exhausted or the stop flag is
// raised.
func (t *Task) Run() {
	next := time.Now()
	for {
		time.Sleep(time.Until(next))

		if t.Stop.Stopped() {
			return
		}
		if t.currentIndex >= len(t.Patterns) {
			return
		}
		if late := time.Since(next); late > Period {
			t.Log.Debug("lamp ticker missed its deadline", "late_us", late.Microseconds())
		}

		if t.ticksRemaining == 0 {
			t.beginStep(t.Patterns[t.currentIndex])
		}

		t.ticksRemaining--
		if t.ticksRemaining <= 0 {
			t.currentIndex++
		}

		next = next.Add(Period)
	}
}

// beginStep applies a pattern step's lamp state and arms the tick
// counter for its duration (spec §4.6 steps 1-5).
func (t *Task) beginStep(step pattern.Step) {
	t.ticksRemaining = step.Ticks()
	if t.ticksRemaining <= 0 {
		t.ticksRemaining = 1 // a zero-duration step would stall the ticker forever
	}

	desired := gpio.Expand(t.Lines, step.Bits)
	toSet := desired &^ t.shadow & t.mask
	toClear := ^desired & t.shadow & t.mask

	if toSet != 0 {
		t.Win.SetBits(toSet)
	}
	// The barrier is implicit in the Writer's SetBits/ClearBits
	// contract (gpio.Window orders the pair with a fence); callers
	// relying on gpio.Writer never need to issue one themselves.
	if toClear != 0 {
		t.Win.ClearBits(toClear)
	}

	t.shadow = (t.shadow &^ t.mask) | desired
}
