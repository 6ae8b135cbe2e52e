package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const numberPattern = `\d+(?:[.,]\d+)?`

var (
	// a digit followed by whitespace and a three-digit group, e.g. "3 600"
	digitGroup  = regexp.MustCompile(`(\d)[ \t\x{00A0}]+(\d{3})\b`)
	numberToken = regexp.MustCompile(numberPattern)
)

// joinDigitGroups removes thousands-grouping whitespace ("3 600" -> "3600").
func joinDigitGroups(text string) string {
	for {
		joined := digitGroup.ReplaceAllString(text, "$1$2")
		if joined == text {
			return joined
		}
		text = joined
	}
}

// ParseNumber converts a single token to a float. Both "." and "," are decimal
// separators and a leading sign is accepted. It never panics.
func ParseNumber(token string) (float64, bool) {
	token = strings.TrimSpace(strings.ReplaceAll(token, ",", "."))
	if token == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ExtractNumbers returns the numbers of text in order of appearance.
// Malformed tokens are skipped.
func ExtractNumbers(text string) []float64 {
	tokens := numberToken.FindAllString(joinDigitGroups(text), -1)
	numbers := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		if v, ok := ParseNumber(tok); ok {
			numbers = append(numbers, v)
		}
	}
	return numbers
}

// FirstNumber returns the first number in text.
func FirstNumber(text string) (float64, bool) {
	nums := ExtractNumbers(text)
	if len(nums) == 0 {
		return 0, false
	}
	return nums[0], true
}

func firstLine(text string) string {
	text = strings.TrimLeft(text, " \t\r\n")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimRight(text[:i], "\r")
	}
	return text
}

// decimalsOf returns the number of fractional digits of a token like "1.8745" or "3590,2".
func decimalsOf(token string) int {
	if i := strings.IndexAny(token, ".,"); i >= 0 {
		return len(token) - i - 1
	}
	return 0
}
