package wavfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestWAV(t *testing.T, sampleRate uint32, channels uint16, frames []int16, extraChunk bool) string {
	t.Helper()

	var data bytes.Buffer
	for _, s := range frames {
		binary.Write(&data, binary.LittleEndian, s)
	}

	var body bytes.Buffer
	body.WriteString("WAVE")

	if extraChunk {
		body.WriteString("JUNK")
		binary.Write(&body, binary.LittleEndian, uint32(4))
		body.Write([]byte{0, 0, 0, 0})
	}

	body.WriteString("fmt ")
	binary.Write(&body, binary.LittleEndian, uint32(16))
	fmtc := fmtChunk{
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    sampleRate,
		ByteRate:      sampleRate * uint32(channels) * 2,
		BlockAlign:    channels * 2,
		BitsPerSample: 16,
	}
	binary.Write(&body, binary.LittleEndian, fmtc)

	body.WriteString("data")
	binary.Write(&body, binary.LittleEndian, uint32(data.Len()))
	body.Write(data.Bytes())

	var full bytes.Buffer
	full.WriteString("RIFF")
	binary.Write(&full, binary.LittleEndian, uint32(body.Len()))
	full.Write(body.Bytes())

	path := filepath.Join(t.TempDir(), "test.wav")
	require.NoError(t, os.WriteFile(path, full.Bytes(), 0o644))
	return path
}

func TestOpen_parsesPCM16Stereo(t *testing.T) {
	frames := []int16{1, -1, 2, -2, 3, -3}
	path := writeTestWAV(t, 44100, 2, frames, false)

	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, uint32(44100), w.SampleRateHz())
	assert.Equal(t, uint8(2), w.Channels())
	assert.Equal(t, 3, w.AvailableFrames())

	out := make([]int16, 6)
	n := w.Read(out, 10)
	assert.Equal(t, 3, n)
	assert.Equal(t, frames, out)
	assert.True(t, w.Finished())
}

func TestOpen_skipsChunksBeforeData(t *testing.T) {
	path := writeTestWAV(t, 48000, 1, []int16{7, 8, 9}, true)
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, 3, w.AvailableFrames())
}

func TestOpen_rejectsNonPCM(t *testing.T) {
	path := writeTestWAV(t, 44100, 2, []int16{1, 2}, false)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// Corrupt the fmt tag (byte 20 of the file: RIFF header 8 + "WAVE" 4
	// + "fmt " 4 + chunk size 4 = 20).
	raw[20] = 3
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrFormatRejected)
}

func TestOpen_partialReadsAdvanceOffset(t *testing.T) {
	path := writeTestWAV(t, 44100, 1, []int16{10, 20, 30, 40}, false)
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	out := make([]int16, 2)
	n := w.Read(out, 2)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int16{10, 20}, out)
	assert.False(t, w.Finished())

	n = w.Read(out, 2)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int16{30, 40}, out)
	assert.True(t, w.Finished())
}
