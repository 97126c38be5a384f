package rtprio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// SetFIFO requires CAP_SYS_NICE; in an unprivileged test sandbox it
// is expected to fail, and that failure must be the documented
// sentinel rather than a panic or an opaque error.
func TestSetFIFO_deniedOrSucceeds(t *testing.T) {
	err := SetFIFO(AudioWriterPriority)
	if err != nil {
		assert.True(t, errors.Is(err, ErrPriorityDenied))
	}
}
