package models

import (
	"strings"
	"time"
)

// Candle represents a daily OHLCV record for feature engineering and training.
type Candle struct {
	Bucket   time.Time
	Symbol   string
	Exchange string
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// InstrumentKey identifies one tradable instrument. It keys forecast caches,
// training locks and model artifacts.
type InstrumentKey struct {
	Symbol   string
	Exchange string
}

func NewInstrumentKey(symbol, exchange string) InstrumentKey {
	return InstrumentKey{
		Symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		Exchange: strings.ToUpper(strings.TrimSpace(exchange)),
	}
}

// String renders the canonical SYMBOL.EXCHANGE form.
func (k InstrumentKey) String() string {
	if k.Exchange == "" {
		return k.Symbol
	}
	return k.Symbol + "." + k.Exchange
}
