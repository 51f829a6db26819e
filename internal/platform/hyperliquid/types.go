package hyperliquid

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// floatStr is a float64 that unmarshals from either a JSON string or a JSON
// number. The exchange encodes every price and size as a decimal string to
// avoid float truncation on its side; some fields arrive as plain numbers.
type floatStr float64

func (f *floatStr) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty number")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse %q: %w", s, err)
		}
		*f = floatStr(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = floatStr(v)
	return nil
}

// clearinghouseState is the account state response from the info endpoint.
type clearinghouseState struct {
	AssetPositions []assetPosition `json:"assetPositions"`
	MarginSummary  marginSummary   `json:"marginSummary"`
	Withdrawable   floatStr        `json:"withdrawable"`
	Time           int64           `json:"time"`
}

type marginSummary struct {
	AccountValue    floatStr `json:"accountValue"`
	TotalNtlPos     floatStr `json:"totalNtlPos"`
	TotalMarginUsed floatStr `json:"totalMarginUsed"`
}

type assetPosition struct {
	Position rawPosition `json:"position"`
	Type     string      `json:"type"`
}

// rawPosition is one open position as the exchange reports it. Szi is signed
// size: positive long, negative short. LiquidationPx is null for positions
// that cannot be liquidated at the current margin.
type rawPosition struct {
	Coin           string      `json:"coin"`
	Szi            floatStr    `json:"szi"`
	EntryPx        floatStr    `json:"entryPx"`
	PositionValue  floatStr    `json:"positionValue"`
	UnrealizedPnl  floatStr    `json:"unrealizedPnl"`
	RealizedPnl    floatStr    `json:"realizedPnl"`
	LiquidationPx  *floatStr   `json:"liquidationPx"`
	MarginUsed     floatStr    `json:"marginUsed"`
	ReturnOnEquity floatStr    `json:"returnOnEquity"`
	Leverage       rawLeverage `json:"leverage"`
}

type rawLeverage struct {
	Type  string   `json:"type"` // "cross" or "isolated"
	Value floatStr `json:"value"`
}

// rawFill is one fill row from the userFills endpoints. Side is "B" (buy) or
// "A" (ask/sell); Time is Unix milliseconds.
type rawFill struct {
	Coin      string   `json:"coin"`
	Px        floatStr `json:"px"`
	Sz        floatStr `json:"sz"`
	Side      string   `json:"side"`
	Time      int64    `json:"time"`
	ClosedPnl floatStr `json:"closedPnl"`
	Hash      string   `json:"hash"`
	Oid       int64    `json:"oid"`
	Tid       int64    `json:"tid"`
	Dir       string   `json:"dir"`
}

// metaUniverse is the first element of the metaAndAssetCtxs response.
type metaUniverse struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

// assetCtx is one per-asset context; the array is index-aligned with the
// universe list.
type assetCtx struct {
	MarkPx   floatStr `json:"markPx"`
	MidPx    floatStr `json:"midPx"`
	OraclePx floatStr `json:"oraclePx"`
}
