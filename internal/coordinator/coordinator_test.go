package coordinator

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsebik/lampshow/internal/gpio"
	"github.com/gsebik/lampshow/internal/signalstop"
	"github.com/gsebik/lampshow/internal/sink"
)

type fakeWindow struct {
	offCalls [][]uint
}

func (w *fakeWindow) SetBits(uint32)   {}
func (w *fakeWindow) ClearBits(uint32) {}
func (w *fakeWindow) AllOff(lines []uint) {
	w.offCalls = append(w.offCalls, append([]uint(nil), lines...))
}

var _ gpio.Writer = (*fakeWindow)(nil)

type fakeSink struct {
	drained bool
	closed  bool
}

func (s *fakeSink) Write(buf []int16, frames int) (int, error) { return frames, nil }
func (s *fakeSink) Prepare() error                              { return nil }
func (s *fakeSink) Delay() (int, error)                          { return 0, nil }

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func writePattern(t *testing.T, dir, name string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".txt"), []byte(content), 0o644))
}

// writeTestWAV writes a minimal valid PCM16 WAV file so openAudio has
// something real to parse.
func writeTestWAV(t *testing.T, dir, name string) string {
	t.Helper()

	type fmtChunk struct {
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}

	frames := []int16{1, -1, 2, -2, 3, -3, 4, -4}

	var data bytes.Buffer
	for _, s := range frames {
		binary.Write(&data, binary.LittleEndian, s)
	}

	var body bytes.Buffer
	body.WriteString("WAVE")
	body.WriteString("fmt ")
	binary.Write(&body, binary.LittleEndian, uint32(16))
	binary.Write(&body, binary.LittleEndian, fmtChunk{
		AudioFormat:   1,
		NumChannels:   2,
		SampleRate:    44100,
		ByteRate:      44100 * 2 * 2,
		BlockAlign:    2 * 2,
		BitsPerSample: 16,
	})
	body.WriteString("data")
	binary.Write(&body, binary.LittleEndian, uint32(data.Len()))
	body.Write(data.Bytes())

	var full bytes.Buffer
	full.WriteString("RIFF")
	binary.Write(&full, binary.LittleEndian, uint32(body.Len()))
	full.Write(body.Bytes())

	path := filepath.Join(dir, name+".wav")
	require.NoError(t, os.WriteFile(path, full.Bytes(), 0o644))
	return path
}

func TestResolveAssets_preferMP3OverWAV(t *testing.T) {
	dir := t.TempDir()
	writePattern(t, dir, "song1", "10 10000000\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song1.mp3"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song1.wav"), []byte("x"), 0o644))

	_, audio, isMP3, err := resolveAssets(dir, "song1")
	require.NoError(t, err)
	assert.True(t, isMP3)
	assert.Contains(t, audio, "song1.mp3")
}

func TestResolveAssets_fallsBackToWAV(t *testing.T) {
	dir := t.TempDir()
	writePattern(t, dir, "song2", "10 10000000\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song2.wav"), []byte("x"), 0o644))

	_, audio, isMP3, err := resolveAssets(dir, "song2")
	require.NoError(t, err)
	assert.False(t, isMP3)
	assert.Contains(t, audio, "song2.wav")
}

func TestResolveAssets_missingPatternAborts(t *testing.T) {
	dir := t.TempDir()
	_, _, _, err := resolveAssets(dir, "nope")
	assert.ErrorIs(t, err, ErrNoPattern)
}

func TestResolveAssets_audioOptional(t *testing.T) {
	dir := t.TempDir()
	writePattern(t, dir, "lampsonly", "10 10000000\n")

	_, audio, _, err := resolveAssets(dir, "lampsonly")
	require.NoError(t, err)
	assert.Empty(t, audio)
}

func TestPlaySong_lampsOnlyRunsToCompletionAndTurnsLampsOff(t *testing.T) {
	dir := t.TempDir()
	writePattern(t, dir, "lampsonly", "10 10000000\n10 01000000\n")

	win := &fakeWindow{}
	stop := signalstop.NewFlag()
	c := New(win, gpio.LampLines, stop, testLogger())
	sinkOpenerCalled := false
	c.WithSinkOpener(func(rate uint32, ch uint8) (sink.API, func() error, error) {
		sinkOpenerCalled = true
		s := &fakeSink{}
		return s, func() error { s.drained = true; s.closed = true; return nil }, nil
	})

	done := make(chan error, 1)
	go func() { done <- c.PlaySong(dir, "lampsonly") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("PlaySong did not return")
	}

	require.Len(t, win.offCalls, 1)
	assert.False(t, sinkOpenerCalled, "lamps-only playback must never open a sink")
}

func TestPlaySong_sinkUnavailableFallsBackToLampsOnly(t *testing.T) {
	dir := t.TempDir()
	writePattern(t, dir, "song", "10 10000000\n10 01000000\n")
	writeTestWAV(t, dir, "song")

	win := &fakeWindow{}
	stop := signalstop.NewFlag()
	c := New(win, gpio.LampLines, stop, testLogger())
	c.WithSinkOpener(func(rate uint32, ch uint8) (sink.API, func() error, error) {
		return nil, nil, errors.New("no such device")
	})

	done := make(chan error, 1)
	go func() { done <- c.PlaySong(dir, "song") }()

	select {
	case err := <-done:
		require.NoError(t, err, "a DeviceUnavailable sink failure must not abort the song")
	case <-time.After(5 * time.Second):
		t.Fatal("PlaySong did not return")
	}

	require.Len(t, win.offCalls, 1)
}

func TestPlaySong_stopFlagEndsSongPromptly(t *testing.T) {
	dir := t.TempDir()
	// A very long pattern: without the stop flag this would run for
	// several seconds.
	content := ""
	for i := 0; i < 500; i++ {
		content += "10 10000000\n"
	}
	writePattern(t, dir, "longsong", content)

	win := &fakeWindow{}
	stop := signalstop.NewFlag()
	c := New(win, gpio.LampLines, stop, testLogger())
	c.WithSinkOpener(func(rate uint32, ch uint8) (sink.API, func() error, error) {
		s := &fakeSink{}
		return s, func() error { return nil }, nil
	})

	go func() {
		time.Sleep(30 * time.Millisecond)
		stop.Set()
	}()

	done := make(chan error, 1)
	go func() { done <- c.PlaySong(dir, "longsong") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("PlaySong did not honor the stop flag")
	}
}
