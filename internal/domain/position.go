package domain

import "time"

// Side is the direction of a derivative position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position represents one open leveraged position as reported by the
// exchange. LiquidationPrice is nil for fully collateralized positions that
// cannot be liquidated at the current leverage.
type Position struct {
	Asset            string
	Side             Side
	Size             float64 // magnitude; Side carries the direction
	EntryPrice       float64
	LiquidationPrice *float64
	Leverage         float64
	UnrealizedPnL    float64
	RealizedPnL      float64
	MarginUsed       float64
}

// Notional returns the current notional value of the position at the given
// mark price.
func (p Position) Notional(mark float64) float64 {
	return p.Size * mark
}

// AccountSnapshot is the normalized state of one account at a point in time.
// Snapshots are rebuilt wholesale on every poll cycle and never mutated in
// place, so they can be shared freely between goroutines.
type AccountSnapshot struct {
	Account      string // wallet address
	Timestamp    time.Time
	AccountValue float64 // total equity; may dip below zero near liquidation
	FreeMargin   float64 // withdrawable margin, floored at zero
	Positions    []Position
}

// TotalUnrealizedPnL sums the unrealized PnL across all open positions.
func (s AccountSnapshot) TotalUnrealizedPnL() float64 {
	var total float64
	for _, p := range s.Positions {
		total += p.UnrealizedPnL
	}
	return total
}

// TotalMarginUsed sums the committed margin across all open positions.
func (s AccountSnapshot) TotalMarginUsed() float64 {
	var total float64
	for _, p := range s.Positions {
		total += p.MarginUsed
	}
	return total
}

// PositionRecord is one persisted position_history row.
type PositionRecord struct {
	Timestamp time.Time
	Account   string
	Position  Position
}
