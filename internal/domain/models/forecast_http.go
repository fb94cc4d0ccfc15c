package models

import (
	"fmt"
	"hash/fnv"
)

// Requests for forecasting HTTP endpoints. Defined in domain for consistency and reuse.

type AnalyzeRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Exchange string `query:"exchange" json:"exchange" default:"US" validate:"alphanum"`
	Lookback int    `query:"lookback" json:"lookback" default:"500" validate:"gte=60,lte=5000"`
	Signals  bool   `query:"signals" json:"signals" default:"true"`
}

// Hash folds the request parameters that affect the forecast into a cache key
// component, so requests with different lookbacks never share an entry.
func (r AnalyzeRequest) Hash() string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d|%t", r.Lookback, r.Signals)
	return fmt.Sprintf("%08x", h.Sum32())
}

// Key returns the instrument key for the request.
func (r AnalyzeRequest) Key() InstrumentKey {
	return NewInstrumentKey(r.Symbol, r.Exchange)
}

type TrainRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Exchange string `query:"exchange" json:"exchange" default:"US" validate:"alphanum"`
	Lookback int    `query:"lookback" json:"lookback" default:"1000" validate:"gte=100,lte=10000"`
}

func (r TrainRequest) Key() InstrumentKey {
	return NewInstrumentKey(r.Symbol, r.Exchange)
}

type CandlesRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Exchange string `query:"exchange" json:"exchange" default:"US" validate:"alphanum"`
	From     string `query:"from" json:"from"`
	To       string `query:"to" json:"to"`
	Limit    int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
}

type SignalsRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Exchange string `query:"exchange" json:"exchange" default:"US" validate:"alphanum"`
	Lookback int    `query:"lookback" json:"lookback" default:"300" validate:"gte=60,lte=5000"`
}
