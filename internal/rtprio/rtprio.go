/*------------------------------------------------------------------
 *
 * Purpose:	Elevates the calling goroutine's backing OS thread to a
 *		fixed-priority preemptive (SCHED_FIFO) scheduling class,
 *		the Go analogue of pthread_attr_setschedpolicy +
 *		pthread_attr_setschedparam in the original C engine.
 *
 *		Must be called after runtime.LockOSThread from the
 *		goroutine that is to run at elevated priority: Go
 *		doesn't expose per-thread scheduling attributes at
 *		creation time the way pthread_create does, so we set
 *		them on the current thread once it's pinned.
 *
 *---------------------------------------------------------------*/
package rtprio

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// schedParam mirrors the kernel's struct sched_param, which
// golang.org/x/sys/unix does not wrap directly.
type schedParam struct {
	Priority int32
}

// ErrPriorityDenied is returned when the scheduling class/priority
// could not be set, typically for lack of CAP_SYS_NICE.
var ErrPriorityDenied = errors.New("rtprio: priority elevation denied")

// LampTickerPriority and AudioWriterPriority mirror spec §4.7: the
// lamp ticker outranks the audio writer because lamp jitter is
// perceptually severe while the sink has its own hardware buffer.
const (
	LampTickerPriority  = 80
	AudioWriterPriority = 75
)

// SetFIFO requests SCHED_FIFO at the given priority for the calling
// OS thread. The caller must have already called
// runtime.LockOSThread. On failure it returns ErrPriorityDenied
// wrapping the underlying errno; callers should log and continue at
// default priority rather than treat this as fatal.
func SetFIFO(priority int) error {
	param := schedParam{Priority: int32(priority)}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, uintptr(unix.SCHED_FIFO), uintptr(unsafe.Pointer(&param)))
	if errno != 0 {
		return fmt.Errorf("%w: %v", ErrPriorityDenied, errno)
	}
	return nil
}
