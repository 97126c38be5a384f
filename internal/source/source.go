/*------------------------------------------------------------------
 *
 * Purpose:	Uniform producer over either a memory-mapped PCM file
 *		or a background-decoded compressed file. The audio
 *		writer never branches on file extension; it only ever
 *		sees this interface.
 *
 *---------------------------------------------------------------*/
package source

// Stream is implemented by wavfile.PCMMapped and mp3source.Decoded.
type Stream interface {
	// Start begins any background work (e.g. the decoder goroutine).
	// PCM-mapped sources may treat this as a no-op.
	Start() error

	// AvailableFrames reports frames ready to be read right now.
	AvailableFrames() int

	// Read copies up to n interleaved frames into out and returns
	// the number of frames copied. May return fewer than n.
	Read(out []int16, n int) int

	// Finished reports whether every frame has been produced and
	// consumed: no more data will ever become available.
	Finished() bool

	// SampleRateHz and Channels describe the stream's format.
	SampleRateHz() uint32
	Channels() uint8

	// Close releases the source's resources, joining any background
	// decoder goroutine.
	Close() error
}
