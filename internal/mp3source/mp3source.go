/*------------------------------------------------------------------
 *
 * Purpose:	Background-decoded compressed audio source.
 *
 *		Starts a decoder goroutine at default priority that
 *		repeatedly decodes one period's worth of frames and
 *		blocks pushing them into the ring buffer (backpressure,
 *		not drop). Read copies out of the ring; Finished becomes
 *		true once the decoder has hit end-of-stream and the ring
 *		has drained.
 *
 *---------------------------------------------------------------*/
package mp3source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/gsebik/lampshow/internal/ringbuffer"
	"github.com/gsebik/lampshow/internal/source"
)

var _ source.Stream = (*Decoded)(nil)

// channels is fixed: go-mp3 always decodes to interleaved stereo.
const channels = 2

// ringSeconds is the approximate ring capacity, per spec §4.3.
const ringSeconds = 3

// Decoded is a source.Stream backed by a background MP3 decoder
// feeding a bounded SPSC ring buffer.
type Decoded struct {
	pcm        io.Reader // the decoder, abstracted for testability
	ring       *ringbuffer.Ring
	sampleRate uint32

	periodFrames int
	decoderDone  chan error
	eof          atomic.Bool
	stop         atomic.Bool
}

// Open initializes the decoder from r and sizes the ring buffer for
// roughly ringSeconds seconds of audio. The sample rate is known as
// soon as the MP3 header is parsed, before the coordinator has sized
// the sink's period; call SetPeriodFrames once that's known, before
// Start.
func Open(r io.Reader) (*Decoded, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3source: decode init: %w", err)
	}
	sampleRate := uint32(dec.SampleRate())
	ring := ringbuffer.New(int(sampleRate)*ringSeconds, channels)

	return &Decoded{
		pcm:          dec,
		ring:         ring,
		sampleRate:   sampleRate,
		decoderDone:  make(chan error, 1),
	}, nil
}

// SetPeriodFrames fixes the decode loop's per-iteration push size to
// the sink's negotiated period. Must be called before Start.
func (d *Decoded) SetPeriodFrames(periodFrames int) {
	d.periodFrames = periodFrames
}

// Stop cancels a blocked decoder push, used by the stop-flag path so
// the decoder goroutine exits promptly on shutdown.
func (d *Decoded) Stop() {
	d.stop.Store(true)
	d.ring.Cancel()
}

// Start launches the decoder goroutine.
func (d *Decoded) Start() error {
	go d.decodeLoop()
	return nil
}

func (d *Decoded) decodeLoop() {
	buf := make([]byte, d.periodFrames*channels*2)
	frames := make([]int16, d.periodFrames*channels)

	for {
		if d.stop.Load() {
			d.decoderDone <- nil
			return
		}
		n, err := io.ReadFull(d.pcm, buf)
		if n > 0 {
			nFrames := n / (channels * 2)
			for i := 0; i < nFrames*channels; i++ {
				frames[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			}
			if !d.ring.Push(frames[:nFrames*channels], nFrames) {
				d.decoderDone <- nil
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof.Store(true)
				d.decoderDone <- nil
				return
			}
			d.eof.Store(true)
			d.decoderDone <- err
			return
		}
	}
}

// AvailableFrames is the ring's current fill level.
func (d *Decoded) AvailableFrames() int { return d.ring.AvailableFrames() }

// Read copies up to min(n, available) frames from the ring.
func (d *Decoded) Read(out []int16, n int) int {
	return d.ring.Pop(out, n)
}

// Finished is true once the decoder signalled end-of-stream and the
// ring is empty.
func (d *Decoded) Finished() bool {
	return d.eof.Load() && d.ring.AvailableFrames() == 0
}

func (d *Decoded) SampleRateHz() uint32 { return d.sampleRate }
func (d *Decoded) Channels() uint8      { return channels }

// Close stops the decoder and waits for its goroutine to exit.
func (d *Decoded) Close() error {
	d.Stop()
	return <-d.decoderDone
}
