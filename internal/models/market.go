package models

import "time"

// Candle is a single OHLCV bar, the unit the indicator engine operates on.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	OpenInt   float64   `json:"open_interest"`
}

// Indicators holds the derived values attached to a MarketSnapshot. Any field
// may be zero-valued when there isn't yet enough history to compute it; the
// AI decision engine and the fallback rule path treat a zero value in a
// field that normally can't be zero (e.g. MA60 before 60 candles exist) as
// "not available" rather than as a real reading.
type Indicators struct {
	MA5   float64 `json:"ma5"`
	MA10  float64 `json:"ma10"`
	MA20  float64 `json:"ma20"`
	MA60  float64 `json:"ma60"`
	EMA12 float64 `json:"ema12"`
	EMA26 float64 `json:"ema26"`

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	RSI14 float64 `json:"rsi14"`

	BollUpper float64 `json:"boll_upper"`
	BollMid   float64 `json:"boll_mid"`
	BollLower float64 `json:"boll_lower"`

	ATR14 float64 `json:"atr14"`

	K float64 `json:"k"`
	D float64 `json:"d"`
	J float64 `json:"j"`
}

// MarketSnapshot is what a StrategyAgent feeds into the AI decision engine on
// each tick: current quote plus the indicator set computed over recent
// history for the agent's symbol.
type MarketSnapshot struct {
	Symbol        string     `json:"symbol"`
	Timestamp     time.Time  `json:"timestamp"`
	LastPrice     float64    `json:"last_price"`
	Bid           float64    `json:"bid"`
	Ask           float64    `json:"ask"`
	OpenInterest  float64    `json:"open_interest"`
	Volume24h     float64    `json:"volume_24h"`
	Indicators    Indicators `json:"indicators"`
	RecentCandles []Candle   `json:"-"`
}
