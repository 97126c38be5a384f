/*------------------------------------------------------------------
 *
 * Purpose:	PCM playback sink: opens the default sound card with
 *		a 10ms period, and offers blocking interleaved writes,
 *		drain, and recovery from under-runs. The hardware
 *		buffer size is not set: portaudio's default output
 *		latency applies.
 *
 *		The hardware access itself is behind a small `device`
 *		interface so the Sink's prefill/write logic can be
 *		tested without a sound card; Open wires up the real
 *		portaudio-backed device.
 *
 *---------------------------------------------------------------*/
package sink

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrUnderrun is returned by Write when the sink reports insufficient
// data to keep the hardware queue fed.
var ErrUnderrun = errors.New("sink: underrun")

// HardwarePeriodMultiplier is the nominal hardware buffer size in
// periods; Open does not pass it to portaudio. silencePrefillPeriods
// is how many silent periods Open writes before dropping and
// re-preparing the device.
const (
	HardwarePeriodMultiplier = 12 // buffer ~= 12 * period
	silencePrefillPeriods    = 4
)

// device is the minimal hardware contract a Sink drives. paDevice
// implements it over portaudio; tests substitute a fake.
type device interface {
	Write(buf []int16) error
	Prepare() error
	Delay() (int, error)
	Drain() error
	Close() error
}

// API is the subset of Sink the audio writer task depends on. Tests
// substitute a fake to exercise the writer's backlog/under-run logic
// without a sound card.
type API interface {
	Write(buf []int16, frames int) (int, error)
	Prepare() error
	Delay() (int, error)
}

// Sink is the opened PCM output device.
type Sink struct {
	dev          device
	sampleRate   uint32
	channels     uint8
	periodFrames int
}

// PeriodFrames returns period_frames = sample_rate_hz * 10 / 1000,
// rounded up.
func PeriodFrames(sampleRateHz uint32) int {
	return int((uint64(sampleRateHz)*10 + 999) / 1000)
}

// Open configures interleaved 16-bit LE at rate/channels, negotiates
// the period and buffer size, and flushes stale hardware state by
// writing silent periods then dropping and re-preparing.
func Open(sampleRateHz uint32, channels uint8) (*Sink, error) {
	dev, err := newPortaudioDevice(sampleRateHz, channels)
	if err != nil {
		return nil, fmt.Errorf("sink: open: %w", err)
	}
	s := &Sink{
		dev:          dev,
		sampleRate:   sampleRateHz,
		channels:     channels,
		periodFrames: PeriodFrames(sampleRateHz),
	}
	if err := s.flushStale(); err != nil {
		dev.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) flushStale() error {
	silence := make([]int16, s.periodFrames*int(s.channels))
	for i := 0; i < silencePrefillPeriods; i++ {
		if err := s.dev.Write(silence); err != nil {
			return fmt.Errorf("sink: silence prefill: %w", err)
		}
	}
	if err := s.dev.Drain(); err != nil {
		return fmt.Errorf("sink: drop: %w", err)
	}
	return s.dev.Prepare()
}

// Period returns this sink's negotiated period, in frames.
func (s *Sink) Period() int { return s.periodFrames }

// Write writes exactly frames frames (frames*channels samples from
// buf) and returns the number of frames written, or ErrUnderrun.
func (s *Sink) Write(buf []int16, frames int) (int, error) {
	need := frames * int(s.channels)
	if len(buf) < need {
		return 0, fmt.Errorf("sink: short buffer: need %d samples, got %d", need, len(buf))
	}
	if err := s.dev.Write(buf[:need]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnderrun, err)
	}
	return frames, nil
}

// Prepare re-arms the device after an under-run.
func (s *Sink) Prepare() error { return s.dev.Prepare() }

// Delay reports the pending-frame count currently queued in hardware.
func (s *Sink) Delay() (int, error) { return s.dev.Delay() }

// Drain blocks until all queued audio has played out.
func (s *Sink) Drain() error { return s.dev.Drain() }

// Close drains and releases the device.
func (s *Sink) Close() error { return s.dev.Close() }

var _ API = (*Sink)(nil)
var _ device = (*paDevice)(nil)

// paDevice wraps a portaudio blocking-mode stream. portaudio's
// blocking API has no ALSA-style snd_pcm_delay query, so Delay is
// approximated from our own write accounting: frames handed to the
// stream minus frames estimated to have already played out, based on
// wall-clock elapsed since the stream started.
type paDevice struct {
	stream     *portaudio.Stream
	outBuf     []int16
	channels   int
	sampleRate float64
	written    int64
	startedAt  time.Time
	started    bool
}

func newPortaudioDevice(sampleRateHz uint32, channels uint8) (*paDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	periodFrames := PeriodFrames(sampleRateHz)
	d := &paDevice{
		channels:   int(channels),
		sampleRate: float64(sampleRateHz),
		outBuf:     make([]int16, periodFrames*int(channels)),
	}
	stream, err := portaudio.OpenDefaultStream(0, int(channels), float64(sampleRateHz), periodFrames, &d.outBuf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio open default stream: %w", err)
	}
	d.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio start: %w", err)
	}
	d.started = true
	d.startedAt = time.Now()
	return d, nil
}

func (d *paDevice) Write(buf []int16) error {
	if len(buf) != len(d.outBuf) {
		// The caller always writes whole periods; a short final
		// period is zero-padded rather than resizing the stream
		// buffer mid-stream.
		padded := make([]int16, len(d.outBuf))
		copy(padded, buf)
		copy(d.outBuf, padded)
	} else {
		copy(d.outBuf, buf)
	}
	if err := d.stream.Write(); err != nil {
		return err
	}
	d.written += int64(len(d.outBuf) / d.channels)
	return nil
}

func (d *paDevice) Prepare() error {
	// portaudio's blocking stream has no explicit "prepare" step
	// beyond being started; re-starting a stopped stream after a
	// Drain-triggered Stop is the equivalent of ALSA's snd_pcm_prepare.
	if d.started {
		return nil
	}
	if err := d.stream.Start(); err != nil {
		return err
	}
	d.started = true
	d.startedAt = time.Now()
	d.written = 0
	return nil
}

func (d *paDevice) Delay() (int, error) {
	if !d.started {
		return 0, nil
	}
	played := int64(time.Since(d.startedAt).Seconds() * d.sampleRate)
	pending := d.written - played
	if pending < 0 {
		pending = 0
	}
	return int(pending), nil
}

func (d *paDevice) Drain() error {
	if !d.started {
		return nil
	}
	if err := d.stream.Stop(); err != nil {
		return err
	}
	d.started = false
	return nil
}

func (d *paDevice) Close() error {
	err := d.Drain()
	if cerr := d.stream.Close(); err == nil {
		err = cerr
	}
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}
