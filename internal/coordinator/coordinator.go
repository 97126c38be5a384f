/*------------------------------------------------------------------
 *
 * Purpose:	Assembles one song's playback: resolves asset paths,
 *		loads the pattern list, opens the audio source and sink,
 *		spins up the lamp ticker and audio writer at elevated
 *		priority, joins them in order, and tears everything down.
 *
 *---------------------------------------------------------------*/
package coordinator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gsebik/lampshow/internal/gpio"
	"github.com/gsebik/lampshow/internal/mp3source"
	"github.com/gsebik/lampshow/internal/pattern"
	"github.com/gsebik/lampshow/internal/rtprio"
	"github.com/gsebik/lampshow/internal/signalstop"
	"github.com/gsebik/lampshow/internal/sink"
	"github.com/gsebik/lampshow/internal/source"
	"github.com/gsebik/lampshow/internal/telemetry"
	"github.com/gsebik/lampshow/internal/ticker"
	"github.com/gsebik/lampshow/internal/wavfile"
	"github.com/gsebik/lampshow/internal/writer"
)

// ErrNoPattern is returned when a song has no pattern file; unlike
// missing audio this aborts the song (spec §4.7 step 1).
var ErrNoPattern = errors.New("coordinator: pattern file missing, song aborted")

// openSink abstracts sink.Open so tests can substitute a fake sink
// without a sound card.
type openSink func(sampleRateHz uint32, channels uint8) (sink.API, func() error, error)

// Coordinator runs one song at a time against a fixed lamp layout.
type Coordinator struct {
	Win       gpio.Writer
	Lines     [gpio.LampCount]uint
	Stop      *signalstop.Flag
	Log       *log.Logger
	Telemetry bool

	openSink openSink

	UnderrunCount int
	BufferStalls  int
}

// New builds a coordinator driving win over the given lamp lines. The
// real sink is opened through sink.Open; tests inject a fake via
// WithSinkOpener.
func New(win gpio.Writer, lines [gpio.LampCount]uint, stop *signalstop.Flag, lg *log.Logger) *Coordinator {
	return &Coordinator{
		Win:   win,
		Lines: lines,
		Stop:  stop,
		Log:   lg,
		openSink: func(rate uint32, ch uint8) (sink.API, func() error, error) {
			s, err := sink.Open(rate, ch)
			if err != nil {
				return nil, nil, err
			}
			drainAndClose := func() error {
				if err := s.Drain(); err != nil {
					return err
				}
				return s.Close()
			}
			return s, drainAndClose, nil
		},
	}
}

// WithSinkOpener overrides how the sink is opened, for tests.
func (c *Coordinator) WithSinkOpener(f openSink) { c.openSink = f }

// resolveAssets finds the pattern file (mandatory) and audio file
// (optional, .mp3 preferred over .wav) for a song base name under
// musicDir.
func resolveAssets(musicDir, baseName string) (patternPath string, audioPath string, isMP3 bool, err error) {
	patternPath = filepath.Join(musicDir, baseName+".txt")
	if _, statErr := os.Stat(patternPath); statErr != nil {
		return "", "", false, fmt.Errorf("%w: %s", ErrNoPattern, patternPath)
	}

	mp3Path := filepath.Join(musicDir, baseName+".mp3")
	if _, statErr := os.Stat(mp3Path); statErr == nil {
		return patternPath, mp3Path, true, nil
	}
	wavPath := filepath.Join(musicDir, baseName+".wav")
	if _, statErr := os.Stat(wavPath); statErr == nil {
		return patternPath, wavPath, false, nil
	}
	return patternPath, "", false, nil
}

// PlaySong runs one song end to end, blocking until it finishes or
// the stop flag is raised.
func (c *Coordinator) PlaySong(musicDir, baseName string) error {
	c.UnderrunCount = 0
	c.BufferStalls = 0

	patternPath, audioPath, isMP3, err := resolveAssets(musicDir, baseName)
	if err != nil {
		return err
	}

	steps, err := pattern.Load(patternPath)
	if err != nil {
		return fmt.Errorf("coordinator: load pattern: %w", err)
	}
	c.Log.Info("loaded pattern", "song", baseName, "steps", len(steps))

	lampTask := ticker.New(c.Win, c.Lines, steps, c.Stop, c.Log)

	// Scenario S2: no audio asset at all. No sink is opened; the
	// lamps run alone.
	if audioPath == "" {
		c.Log.Warn("no audio asset found, running lamps only", "song", baseName)
		runAtPriority(rtprio.LampTickerPriority, c.Log, lampTask.Run)
		c.Win.AllOff(c.Lines[:])
		return nil
	}

	src, sampleRate, channels, err := openAudio(audioPath, isMP3)
	if err != nil {
		return fmt.Errorf("coordinator: open audio: %w", err)
	}

	// DeviceUnavailable (spec §7): PCM open failing is non-fatal --
	// log it and fall back to lamps-only instead of aborting the song.
	snk, closeSink, err := c.openSink(sampleRate, channels)
	if err != nil {
		c.Log.Warn("audio sink unavailable, running lamps only", "song", baseName, "err", err)
		src.Close()
		runAtPriority(rtprio.LampTickerPriority, c.Log, lampTask.Run)
		c.Win.AllOff(c.Lines[:])
		return nil
	}

	if err := src.Start(); err != nil {
		closeSink()
		src.Close()
		return fmt.Errorf("coordinator: start source: %w", err)
	}

	var tel *telemetry.Ring
	if c.Telemetry {
		tel = telemetry.NewRing(4096)
	}

	periodFrames := sink.PeriodFrames(sampleRate)
	audioTask := writer.New(snk, src, c.Stop, c.Log, tel, periodFrames)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		runAtPriority(rtprio.AudioWriterPriority, c.Log, audioTask.Run)
	}()
	go func() {
		defer wg.Done()
		runAtPriority(rtprio.LampTickerPriority, c.Log, lampTask.Run)
	}()

	wg.Wait()

	c.UnderrunCount = audioTask.UnderrunCount
	c.BufferStalls = audioTask.BufferStalls

	c.Win.AllOff(c.Lines[:])
	if err := closeSink(); err != nil {
		c.Log.Error("sink drain/close failed", "err", err)
	}
	if err := src.Close(); err != nil {
		c.Log.Error("source close failed", "err", err)
	}

	if c.Telemetry && tel != nil {
		if err := writeTelemetryReport(tel, baseName); err != nil {
			c.Log.Error("telemetry report failed", "err", err)
		}
	}
	return nil
}

// writeTelemetryReport drains tel's recorded samples to a CSV file in
// the working directory, the Go counterpart of the original engine's
// audio_log report.
func writeTelemetryReport(tel *telemetry.Ring, song string) error {
	report := telemetry.NewReport()
	path := report.FileName("audio", song, time.Now())
	return report.Write(path, tel.Samples())
}

// runAtPriority locks the calling goroutine to its OS thread and
// requests SCHED_FIFO at priority before running fn; denial is
// logged and playback continues at default priority (spec §4.7 step 5).
func runAtPriority(priority int, lg *log.Logger, fn func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := rtprio.SetFIFO(priority); err != nil {
		lg.Warn("real-time priority elevation denied, continuing at default priority", "priority", priority, "err", err)
	}
	fn()
}

func openAudio(path string, isMP3 bool) (source.Stream, uint32, uint8, error) {
	if isMP3 {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, 0, err
		}
		dec, err := mp3source.Open(f)
		if err != nil {
			f.Close()
			return nil, 0, 0, err
		}
		dec.SetPeriodFrames(sink.PeriodFrames(dec.SampleRateHz()))
		return mp3FileSource{Decoded: dec, file: f}, dec.SampleRateHz(), dec.Channels(), nil
	}

	w, err := wavfile.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	return w, w.SampleRateHz(), w.Channels(), nil
}

// mp3FileSource pairs a Decoded stream with the file descriptor it
// decodes from, since mp3source.Open takes an io.Reader and never
// learns which (if any) os.File backs it.
type mp3FileSource struct {
	*mp3source.Decoded
	file *os.File
}

func (s mp3FileSource) Close() error {
	err := s.Decoded.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

var _ source.Stream = mp3FileSource{}
