/*------------------------------------------------------------------
 *
 * Purpose:	One-shot lamp drive via the GPIO character device, used
 *		only by the "-s on|off" CLI path. That path has no
 *		real-time timing requirement and shouldn't map the raw
 *		register page (and hold it open) just to flip eight
 *		lines once and exit.
 *
 *---------------------------------------------------------------*/
package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// DefaultChip is the character-device chip the lamp lines are
// requested against.
const DefaultChip = "gpiochip0"

// SetAllCdev drives every configured lamp line to on (1) or off (0)
// through the kernel's line-request API and releases the lines again
// before returning.
func SetAllCdev(lines [LampCount]uint, on bool) error {
	value := 0
	if on {
		value = 1
	}
	offsets := make([]int, LampCount)
	initial := make([]int, LampCount)
	for i, line := range lines {
		offsets[i] = int(line)
		initial[i] = value
	}

	req, err := gpiocdev.RequestLines(DefaultChip, offsets, gpiocdev.AsOutput(initial...))
	if err != nil {
		return fmt.Errorf("gpio: request lines via %s: %w", DefaultChip, err)
	}
	return req.Close()
}
