package domain

// Account is one broker account receiving replicated orders.
type Account struct {
	Name     string
	Login    string
	Broker   string // broker identity used for symbol translation
	Venue    VenueKind
	IsMaster bool

	// FixedLot, when positive, replaces risk-based sizing.
	FixedLot float64
	// RiskPercent overrides the global risk percentage when positive.
	RiskPercent float64
}

// UsesFixedLot reports whether the account sizes every order with a constant volume.
func (a Account) UsesFixedLot() bool {
	return a.FixedLot > 0
}
