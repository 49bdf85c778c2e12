package value

import (
	"math"
	"strconv"
)

// FormatNumber renders a double the way `print`/`'`/disassembly do: the
// shortest round-tripping %g form, with the two infinities spelled out as
// the UTF-8 infinity glyph.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "∞"
	case math.IsInf(f, -1):
		return "-∞"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}
