package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	lines := [LampCount]uint{0, 1, 2, 3, 4, 5, 6, 7}
	assert.Equal(t, uint32(0xff), Mask(lines))
}

func TestExpand_bit7IsLamp0(t *testing.T) {
	lines := [LampCount]uint{0, 1, 2, 3, 4, 5, 6, 7}

	// 10000000 -> only lamp 0 (line 0) on.
	assert.Equal(t, uint32(1<<0), Expand(lines, 0b10000000))

	// 00000001 -> only lamp 7 (line 7) on.
	assert.Equal(t, uint32(1<<7), Expand(lines, 0b00000001))

	// all on.
	assert.Equal(t, Mask(lines), Expand(lines, 0xff))

	// all off.
	assert.Equal(t, uint32(0), Expand(lines, 0x00))
}

func TestExpand_nonSequentialLines(t *testing.T) {
	assert.Equal(t, uint32(1<<17), Expand(LampLines, 0b10000000))
	assert.Equal(t, uint32(1<<26), Expand(LampLines, 0b00000001))
}
