package gpio

// LampCount is fixed by spec: eight lamps, never configurable.
const LampCount = 8

// LampLines is the process-wide, read-only mapping from lamp index
// (0..7) to physical GPIO line number. Pins correspond to GPIO 22, 5,
// 6, and so on of a Raspberry Pi header -- four pins on each side.
var LampLines = [LampCount]uint{17, 27, 22, 5, 6, 13, 19, 26}

// Mask is the OR of (1 << line) over every configured lamp line: the
// only bits the ticker (or the signal handler's all-off) may modify.
func Mask(lines [LampCount]uint) uint32 {
	var m uint32
	for _, l := range lines {
		m |= 1 << l
	}
	return m
}

// Expand turns a pattern byte (bit 7 = lamp 0, MSB first) into a
// desired-state word expressed in GPIO line positions.
func Expand(lines [LampCount]uint, bits uint8) uint32 {
	var desired uint32
	for i := 0; i < LampCount; i++ {
		if bits&(1<<(7-i)) != 0 {
			desired |= 1 << lines[i]
		}
	}
	return desired
}
