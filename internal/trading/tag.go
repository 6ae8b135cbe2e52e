package trading

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedTag is returned for order tags not written by this bot.
var ErrMalformedTag = errors.New("malformed correlation tag")

// Tag is the correlation data persisted on every placed order.
type Tag struct {
	SignalID        int64
	FirstTakeProfit float64
}

// FormatTag renders "{signalId}/{firstNumericTakeProfit}" using the shortest
// decimal representation of the target.
func FormatTag(signalID int64, firstTakeProfit float64) string {
	return strconv.FormatInt(signalID, 10) + "/" + decimal.NewFromFloat(firstTakeProfit).String()
}

// String implements fmt.Stringer.
func (t Tag) String() string {
	return FormatTag(t.SignalID, t.FirstTakeProfit)
}

// ParseTag is the inverse of FormatTag.
func ParseTag(s string) (Tag, error) {
	id, tp, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || id == "" || tp == "" {
		return Tag{}, fmt.Errorf("%w: %q", ErrMalformedTag, s)
	}
	signalID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Tag{}, fmt.Errorf("%w: %q: %v", ErrMalformedTag, s, err)
	}
	target, err := decimal.NewFromString(tp)
	if err != nil || !target.IsPositive() {
		return Tag{}, fmt.Errorf("%w: %q: bad target", ErrMalformedTag, s)
	}
	f, _ := target.Float64()
	return Tag{SignalID: signalID, FirstTakeProfit: f}, nil
}

// RoundPrice rounds v to the given number of decimal places.
func RoundPrice(v float64, digits int) float64 {
	if digits < 0 {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(int32(digits)).Float64()
	return f
}
