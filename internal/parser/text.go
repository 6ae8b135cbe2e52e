package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"signalCopyBot/internal/domain"
)

var (
	directionKeyword = regexp.MustCompile(`(?i)\b(buy|long|sell|short)`)
	nonAlphanumeric  = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	stopAdjacent     = regexp.MustCompile(`(?i)SL\s*[-–:=]?\s*(` + numberPattern + `)`)
)

// DetectDirection returns the direction of the earliest direction keyword.
func DetectDirection(text string) (domain.Direction, bool) {
	m := directionKeyword.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	switch strings.ToLower(m[1]) {
	case "sell", "short":
		return domain.Short, true
	default:
		return domain.Long, true
	}
}

// HasStopMarker reports whether text mentions a stop loss (case-insensitive).
func HasStopMarker(text string) bool {
	return strings.Contains(strings.ToUpper(text), "SL")
}

// HasTakeProfitMarker reports whether text mentions a take profit (case-insensitive).
func HasTakeProfitMarker(text string) bool {
	return strings.Contains(strings.ToUpper(text), "TP")
}

// NormalizeAuthor strips every non-alphanumeric character and lower-cases the rest.
func NormalizeAuthor(author string) string {
	return strings.ToLower(nonAlphanumeric.ReplaceAllString(author, ""))
}

// stopAfterMarker returns the number directly after "SL", else the first number
// following the marker anywhere in the text.
func stopAfterMarker(text string) (float64, bool) {
	text = joinDigitGroups(text)
	if m := stopAdjacent.FindStringSubmatch(text); m != nil {
		if v, ok := ParseNumber(m[1]); ok {
			return v, true
		}
	}
	idx := strings.Index(strings.ToUpper(text), "SL")
	if idx < 0 {
		return 0, false
	}
	return FirstNumber(text[idx+2:])
}

// offsetPrice returns price + sign*offset without binary floating point drift.
func offsetPrice(price, offset, sign float64) float64 {
	p := decimal.NewFromFloat(price).Add(decimal.NewFromFloat(offset).Mul(decimal.NewFromFloat(sign)))
	f, _ := p.Float64()
	return f
}
