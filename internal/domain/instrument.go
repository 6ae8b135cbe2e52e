package domain

// InstrumentInfo holds the tick economics and volume constraints of a venue symbol.
type InstrumentInfo struct {
	Symbol     string
	Digits     int
	Point      float64
	TickSize   float64
	TickValue  float64 // account-currency value of one tick for one lot
	VolumeMin  float64
	VolumeMax  float64
	VolumeStep float64
}

// MinStopChange is the smallest stop modification a venue is expected to accept.
func (i InstrumentInfo) MinStopChange() float64 {
	m := 2 * i.Point
	if i.TickSize > m {
		return i.TickSize
	}
	return m
}
