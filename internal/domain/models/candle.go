package models

import "time"

// Candle represents one OHLCV observation. Bucket is the bar's timestamp;
// rows coming from external sources may carry any location and are normalized
// to UTC before session math.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is a time-indexed sequence of candles. No ordering is assumed unless
// stated by the producer.
type Series []Candle
