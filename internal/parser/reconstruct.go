package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var rangeShorthand = regexp.MustCompile(`(` + numberPattern + `)\s*[-–]\s*(` + numberPattern + `)`)

// Reconstruct completes a truncated price fragment against a reference price.
// "70" with reference 3279 becomes 3270: the fragment replaces the trailing digits of
// the reference and the completion closest to the reference wins. Fragments with a
// decimal part, or at least as long as the reference's integer part, are returned as is.
func Reconstruct(fragment string, reference float64) (float64, bool) {
	fragment = strings.TrimSpace(fragment)
	value, ok := ParseNumber(fragment)
	if !ok {
		return 0, false
	}
	value = math.Abs(value)
	if decimalsOf(fragment) > 0 {
		return value, true
	}
	digits := len(strings.TrimLeft(fragment, "+-"))
	return complete(value, digits, reference), true
}

// ReconstructValue is Reconstruct for an already numeric fragment, e.g. from a JSON reply.
func ReconstructValue(value, reference float64) float64 {
	value = math.Abs(value)
	if value != math.Trunc(value) || value == 0 {
		return value
	}
	return complete(value, len(strconv.FormatFloat(value, 'f', 0, 64)), reference)
}

func complete(value float64, digits int, reference float64) float64 {
	reference = math.Abs(reference)
	if reference < 100 {
		return value
	}
	refDigits := len(strconv.FormatFloat(math.Trunc(reference), 'f', 0, 64))
	if digits >= refDigits {
		return value
	}

	mod := math.Pow(10, float64(digits))
	base := math.Floor(reference/mod) * mod
	best := base + value
	for _, candidate := range []float64{base - mod + value, base + mod + value} {
		if candidate > 0 && math.Abs(candidate-reference) < math.Abs(best-reference) {
			best = candidate
		}
	}
	return best
}

// ParseRange parses an entry range such as "3279-76" or "1.8745 - 1.8755" and returns
// it ascending. The second value is reconstructed against the first when truncated.
func ParseRange(text string) (lo, hi float64, ok bool) {
	m := rangeShorthand.FindStringSubmatch(joinDigitGroups(text))
	if m == nil {
		return 0, 0, false
	}
	first, ok := ParseNumber(m[1])
	if !ok {
		return 0, 0, false
	}
	second, ok := Reconstruct(m[2], first)
	if !ok {
		return 0, 0, false
	}
	if second < first {
		first, second = second, first
	}
	return first, second, true
}
