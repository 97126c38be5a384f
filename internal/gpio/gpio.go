/*------------------------------------------------------------------
 *
 * Purpose:	Memory-mapped GPIO register window for the lamp display.
 *
 *		Maps the platform's GPIO control page directly, the way
 *		/dev/gpiomem exposes it on a Raspberry Pi: a set register,
 *		a clear register, and per-pin function-select nibbles.
 *		No ioctl, no kernel line-request state machine -- just
 *		ordered writes to a mapped page, because the lamp ticker
 *		and the signal handler both need a write that cannot
 *		block or allocate.
 *
 *---------------------------------------------------------------*/
package gpio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Register offsets within the mapped page, in 32-bit words.
// Layout matches the BCM283x GPIO peripheral: GPFSELn at 0x00,
// GPSET0 at 0x1c, GPCLR0 at 0x28.
const (
	gpioLen    = 4096
	gpioBase   = 0x20200000 // physical base for /dev/mem fallback (BCM2835)
	fselWords  = 0
	set0Word   = 0x1c / 4
	clr0Word   = 0x28 / 4
	gpiomemDev = "/dev/gpiomem"
	memDev     = "/dev/mem"
)

// Window is the process-global mapped register page. The lamp ticker
// is its sole set/clear writer; the signal handler is the sole other
// writer and is restricted to the clear register (see AllOff).
type Window struct {
	mu     sync.Mutex
	file   *os.File
	region []byte
	regs   []uint32 // same backing memory as region, viewed as uint32 words
	closed atomic.Bool
}

// Open maps the GPIO register page, preferring the restricted
// /dev/gpiomem device node (no root required) and falling back to
// /dev/mem at the platform's physical base offset.
func Open() (*Window, error) {
	f, base, err := openDevice()
	if err != nil {
		return nil, err
	}

	region, err := unix.Mmap(int(f.Fd()), base, gpioLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gpio: mmap: %w", err)
	}

	w := &Window{
		file:   f,
		region: region,
		regs:   bytesToWords(region),
	}
	return w, nil
}

func openDevice() (*os.File, int64, error) {
	if f, err := os.OpenFile(gpiomemDev, os.O_RDWR|os.O_SYNC, 0); err == nil {
		return f, 0, nil
	}

	f, err := os.OpenFile(memDev, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("gpio: open %s and %s both failed: %w", gpiomemDev, memDev, err)
	}
	return f, gpioBase, nil
}

// ConfigureOutputs rewrites the function-select nibble for each line
// so it drives its pad, one line at a time.
func (w *Window) ConfigureOutputs(lines []uint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, line := range lines {
		word := fselWords + int(line/10)
		shift := (line % 10) * 3
		cur := atomic.LoadUint32(&w.regs[word])
		cur = (cur &^ (7 << shift)) | (1 << shift) // 0b001 = output
		atomic.StoreUint32(&w.regs[word], cur)
	}
	barrier()
}

// SetBits writes the platform's set register: hardware sets the 1-bits
// in mask and leaves the rest alone.
func (w *Window) SetBits(mask uint32) {
	atomic.StoreUint32(&w.regs[set0Word], mask)
	barrier()
}

// ClearBits writes the platform's clear register.
func (w *Window) ClearBits(mask uint32) {
	atomic.StoreUint32(&w.regs[clr0Word], mask)
	barrier()
}

// AllOff writes the OR of (1 << line) for every line to the clear
// register. It touches only the clear register and performs no
// allocation, so it is safe to call from a signal handler.
func (w *Window) AllOff(lines []uint) {
	if w == nil || w.closed.Load() {
		return
	}
	var mask uint32
	for _, line := range lines {
		mask |= 1 << line
	}
	atomic.StoreUint32(&w.regs[clr0Word], mask)
	barrier()
}

// Close unmaps the register page and closes the backing descriptor.
// A second call is a no-op.
func (w *Window) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	err := unix.Munmap(w.region)
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// bytesToWords reinterprets a byte-mapped region as a uint32 slice
// without copying, so writes go straight to the mapped page.
func bytesToWords(b []byte) []uint32 {
	if len(b)%4 != 0 {
		b = b[:len(b)-len(b)%4]
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// fence is a process-wide dummy word. Every register write below goes
// through sync/atomic, whose store/load pairs carry acquire/release
// semantics under the Go memory model; touching fence between a set
// and a clear write additionally forces the compiler to treat them as
// ordered, non-reorderable operations.
var fence uint32

// barrier issues a full memory barrier so subsequent device writes are
// not reordered ahead of this one by the compiler or CPU.
func barrier() {
	atomic.AddUint32(&fence, 1)
}
