/*------------------------------------------------------------------
 *
 * Purpose:	Periodic audio writer task. Every 30ms (three sink
 *		periods) it pulls up to three periods from the source
 *		stream and pushes them to the sink, keeping the sink's
 *		pending-frame backlog between one and MaxBufferPeriods
 *		periods, and recovering from under-runs via prepare +
 *		re-prefill.
 *
 *---------------------------------------------------------------*/
package writer

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/gsebik/lampshow/internal/signalstop"
	"github.com/gsebik/lampshow/internal/sink"
	"github.com/gsebik/lampshow/internal/source"
	"github.com/gsebik/lampshow/internal/telemetry"
)

// Period is the writer's own cycle: three sink periods (spec §4.5).
const Period = 30 * time.Millisecond

// WritesPerCycle and the backlog bounds are spec constants.
const (
	WritesPerCycle   = 3
	MaxBufferPeriods = 5
	PrefillPeriods   = 4
)

// Task drives the sink from a source stream on a fixed 30ms grid.
type Task struct {
	Sink   sink.API
	Source source.Stream
	Stop   *signalstop.Flag
	Log    *log.Logger

	// Telemetry is optional; nil disables per-cycle recording.
	Telemetry *telemetry.Ring

	UnderrunCount int
	BufferStalls  int
	channels      int
	periodFrames  int
	scratch       []int16
}

// New builds a writer task for the given sink/source pair.
func New(snk sink.API, src source.Stream, stop *signalstop.Flag, lg *log.Logger, tel *telemetry.Ring, periodFrames int) *Task {
	channels := int(src.Channels())
	return &Task{
		Sink:         snk,
		Source:       src,
		Stop:         stop,
		Log:          lg,
		Telemetry:    tel,
		channels:     channels,
		periodFrames: periodFrames,
		scratch:      make([]int16, periodFrames*channels),
	}
}

// Run blocks until the source finishes or the stop flag is raised.
func (t *Task) Run() {
	next := time.Now()
	for {
		time.Sleep(time.Until(next))

		if t.Stop.Stopped() {
			return
		}
		if t.Source.Finished() {
			return
		}

		cycleStart := time.Now()
		jitter := cycleStart.Sub(next)
		if jitter < 0 {
			t.Log.Error("audio writer woke before its deadline", "jitter_us", jitter.Microseconds())
		}

		delay, _ := t.Sink.Delay()
		maxDelay := MaxBufferPeriods * t.periodFrames

		for i := 0; i < WritesPerCycle; i++ {
			if delay > maxDelay {
				break
			}
			if t.Stop.Stopped() {
				return
			}

			avail := t.Source.AvailableFrames()
			if avail < t.periodFrames && !t.Source.Finished() {
				t.BufferStalls++
				break
			}

			n := t.Source.Read(t.scratch, t.periodFrames)
			if n == 0 {
				break
			}

			if _, err := t.Sink.Write(t.scratch, n); err != nil {
				t.UnderrunCount++
				t.Log.Warn("sink underrun", "count", t.UnderrunCount, "err", err)
				if perr := t.Sink.Prepare(); perr != nil {
					t.Log.Error("sink re-prepare failed", "err", perr)
				}
				t.reprefill()
				break
			}

			delay, _ = t.Sink.Delay()
		}

		if t.Telemetry != nil {
			d, _ := t.Sink.Delay()
			t.Telemetry.Record(telemetry.Sample{
				JitterUS:            jitter.Microseconds(),
				RuntimeUS:           time.Since(cycleStart).Microseconds(),
				SinkPendingFrames:   int64(d),
				RingAvailableFrames: int64(t.Source.AvailableFrames()),
			})
		}

		next = next.Add(Period)
	}
}

// reprefill writes up to PrefillPeriods successive periods after an
// under-run, re-preparing and retrying the same slot on repeated
// failure.
func (t *Task) reprefill() {
	for slot := 0; slot < PrefillPeriods; slot++ {
		if t.Stop.Stopped() {
			return
		}
		n := t.Source.Read(t.scratch, t.periodFrames)
		if n == 0 {
			return
		}
		if _, err := t.Sink.Write(t.scratch, n); err != nil {
			if perr := t.Sink.Prepare(); perr != nil {
				t.Log.Error("sink re-prepare failed during re-prefill", "err", perr)
			}
			slot-- // retry this same prefill slot
			continue
		}
	}
}
