/*------------------------------------------------------------------
 *
 * Purpose:	Memory-mapped 16-bit PCM WAV source.
 *
 *		Maps the file read-only, parses the RIFF/WAVE container,
 *		and exposes the PCM payload directly -- no copy, no
 *		intermediate buffer. Page-locks the mapping so the
 *		audio writer never blocks on a page fault mid-song;
 *		failure to lock degrades the real-time guarantee from
 *		hard to soft but is not fatal.
 *
 *---------------------------------------------------------------*/
package wavfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/gsebik/lampshow/internal/source"
)

var _ source.Stream = (*PCMMapped)(nil)

// ErrFormatRejected is returned when the WAV file is not PCM-16 or
// has no data chunk.
var ErrFormatRejected = errors.New("wavfile: unsupported format, need PCM 16-bit with a data chunk")

type riffHeader struct {
	RiffID  [4]byte
	Size    uint32
	WaveID  [4]byte
}

type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

type fmtChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// PCMMapped is a source.Stream backed by a page-locked mmap of a WAV
// file's PCM payload.
type PCMMapped struct {
	file    *os.File
	mapping []byte
	locked  bool

	sampleRate uint32
	channels   uint8
	frames     int

	pcm    []int16 // view into mapping's data chunk
	offset int     // next frame to read
}

// Open maps filename read-only, validates the RIFF/WAVE container,
// and returns a ready-to-read PCMMapped source.
func Open(filename string) (*PCMMapped, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wavfile: stat: %w", err)
	}
	size := int(st.Size())
	if size < 12 {
		f.Close()
		return nil, ErrFormatRejected
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
	// The mmap result is checked immediately, before the descriptor
	// is closed or the mapping is touched: the original C loader had
	// a syntactically suspicious `close(fd),` construct right before
	// its MAP_FAILED check that could mask a failed mapping.
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wavfile: mmap: %w", err)
	}

	w := &PCMMapped{file: f, mapping: mapping}
	if err := w.parse(); err != nil {
		unix.Munmap(mapping)
		f.Close()
		return nil, err
	}

	if err := unix.Mlock(mapping); err != nil {
		log.Warn("wavfile: mlock failed, real-time guarantee degrades to soft", "err", err)
	} else {
		w.locked = true
	}

	return w, nil
}

func (w *PCMMapped) parse() error {
	r := bytes.NewReader(w.mapping)

	var riff riffHeader
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return fmt.Errorf("%w: %v", ErrFormatRejected, err)
	}
	if string(riff.RiffID[:]) != "RIFF" || string(riff.WaveID[:]) != "WAVE" {
		return ErrFormatRejected
	}

	var fmtc fmtChunk
	var dataOffset, dataSize int
	haveFmt := false

chunks:
	for r.Len() >= 8 {
		var ch chunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			break
		}
		id := string(ch.ID[:])
		switch id {
		case "fmt ":
			if err := binary.Read(r, binary.LittleEndian, &fmtc); err != nil {
				return ErrFormatRejected
			}
			haveFmt = true
			if ch.Size > 16 {
				r.Seek(int64(ch.Size-16), 1)
			}
		case "data":
			// Other chunks between fmt and data are skipped by
			// this loop; we stop at the first data chunk.
			dataOffset = len(w.mapping) - r.Len()
			dataSize = int(ch.Size)
			break chunks
		default:
			r.Seek(int64(ch.Size), 1)
		}
		if ch.Size%2 == 1 {
			r.Seek(1, 1) // RIFF chunks are word-aligned
		}
	}
	if dataOffset == 0 || dataSize == 0 {
		return ErrFormatRejected
	}
	if !haveFmt || fmtc.AudioFormat != 1 || fmtc.BitsPerSample != 16 {
		return ErrFormatRejected
	}

	if dataOffset+dataSize > len(w.mapping) {
		dataSize = len(w.mapping) - dataOffset
	}

	w.sampleRate = fmtc.SampleRate
	w.channels = uint8(fmtc.NumChannels)
	frameBytes := int(fmtc.NumChannels) * 2
	w.frames = dataSize / frameBytes
	w.pcm = bytesToInt16(w.mapping[dataOffset : dataOffset+w.frames*frameBytes])

	return nil
}

// bytesToInt16 reinterprets the mapped little-endian PCM bytes as
// int16 samples without copying, so reads come straight from the
// locked mapping. The host is assumed to be little-endian.
func bytesToInt16(b []byte) []int16 {
	if len(b) < 2 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&b[0])), len(b)/2)
}

// Start is a no-op: the PCM-mapped source has no background work.
func (w *PCMMapped) Start() error { return nil }

// AvailableFrames decreases monotonically as Read advances the offset.
func (w *PCMMapped) AvailableFrames() int {
	return w.frames - w.offset
}

// Read copies up to n frames starting at the current offset.
func (w *PCMMapped) Read(out []int16, n int) int {
	avail := w.AvailableFrames()
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return 0
	}
	ch := int(w.channels)
	start := w.offset * ch
	copy(out[:n*ch], w.pcm[start:start+n*ch])
	w.offset += n
	return n
}

// Finished becomes true once all frames have been read.
func (w *PCMMapped) Finished() bool {
	return w.offset >= w.frames
}

func (w *PCMMapped) SampleRateHz() uint32 { return w.sampleRate }
func (w *PCMMapped) Channels() uint8      { return w.channels }

// Close unlocks and unmaps the file and closes its descriptor.
func (w *PCMMapped) Close() error {
	if w.locked {
		unix.Munlock(w.mapping)
	}
	err := unix.Munmap(w.mapping)
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}
