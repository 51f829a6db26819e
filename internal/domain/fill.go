package domain

import "time"

// Fill is a single trade execution reported by the exchange. FillID is the
// exchange-assigned globally unique identifier and the dedup key: exchange
// fill feeds may redeliver the same fill across polls, and re-ingestion must
// be idempotent.
type Fill struct {
	FillID    string
	OrderID   string
	Asset     string
	Side      Side
	Size      float64
	Price     float64
	ClosedPnL float64 // zero when the fill did not close a position
	Timestamp time.Time
}

// Closing reports whether this fill realized PnL by closing (part of) a
// position.
func (f Fill) Closing() bool {
	return f.ClosedPnL != 0
}

// ClosedTrade is a derived view of a position-closing fill, reconstructed by
// the history reader for the dashboard's closed-trade list.
type ClosedTrade struct {
	Timestamp  time.Time
	Asset      string
	Side       Side
	Size       float64
	EntryPrice float64
	ExitPrice  float64
	Profit     float64
}
