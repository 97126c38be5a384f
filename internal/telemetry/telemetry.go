/*------------------------------------------------------------------
 *
 * Purpose:	Bounded ring of per-cycle timing observations --
 *		jitter, intra-cycle runtime, sink-pending-frame count,
 *		ring-available frames. Not part of the correctness
 *		contract (spec §3); consumed only by the timing
 *		reporter, written out as a CSV report per run.
 *
 *---------------------------------------------------------------*/
package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Sample is one periodic task's cycle observation.
type Sample struct {
	JitterUS            int64
	RuntimeUS           int64
	SinkPendingFrames   int64
	RingAvailableFrames int64
}

// Ring is a bounded, overwrite-oldest ring of samples.
type Ring struct {
	buf   []Sample
	next  int
	count int
}

// NewRing allocates a ring holding up to capacity samples.
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]Sample, capacity)}
}

// Record appends a sample, overwriting the oldest once full.
func (r *Ring) Record(s Sample) {
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Samples returns the recorded samples in chronological order.
func (r *Ring) Samples() []Sample {
	out := make([]Sample, r.count)
	if r.count < len(r.buf) {
		copy(out, r.buf[:r.count])
		return out
	}
	copy(out, r.buf[r.next:])
	copy(out[len(r.buf)-r.next:], r.buf[:r.next])
	return out
}

// Report is a per-run CSV writer; each run is tagged with a UUID so
// replays of the same song on the same second don't collide.
type Report struct {
	runID uuid.UUID
}

// NewReport mints a run ID for this playback.
func NewReport() *Report {
	return &Report{runID: uuid.New()}
}

// FileName builds "<kind>_log_<song>_<timestamp>_<runID>.csv", the Go
// counterpart of the original engine's make_log_filename.
func (r *Report) FileName(kind, song string, now time.Time) string {
	return fmt.Sprintf("%s_log_%s_%s_%s.csv", kind, song, now.Format("20060102_150405"), r.runID.String()[:8])
}

// Write dumps a ring's samples to path as CSV.
func (r *Report) Write(path string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("telemetry: create report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"cycle", "jitter_us", "runtime_us", "sink_pending_frames", "ring_available_frames"}); err != nil {
		return err
	}
	for i, s := range samples {
		row := []string{
			strconv.Itoa(i),
			strconv.FormatInt(s.JitterUS, 10),
			strconv.FormatInt(s.RuntimeUS, 10),
			strconv.FormatInt(s.SinkPendingFrames, 10),
			strconv.FormatInt(s.RingAvailableFrames, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
