package models

import (
	"encoding/json"
	"time"
)

type Horizon string

const (
	HorizonIntraday Horizon = "intraday"
	HorizonWeekly   Horizon = "weekly"
	HorizonMonthly  Horizon = "monthly"
	HorizonLongTerm Horizon = "longterm"
)

// Horizons lists every horizon in response order.
var Horizons = []Horizon{HorizonIntraday, HorizonWeekly, HorizonMonthly, HorizonLongTerm}

// Forecast sources.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// HorizonForecast is a single projected price with its confidence.
type HorizonForecast struct {
	Horizon    Horizon `json:"horizon"`
	Target     float64 `json:"target"`
	ChangePct  float64 `json:"change_pct"`
	Confidence int     `json:"confidence"`
}

// MultiHorizonForecast carries all horizon projections for one instrument.
type MultiHorizonForecast struct {
	Symbol       string            `json:"symbol"`
	Exchange     string            `json:"exchange"`
	CurrentPrice float64           `json:"current_price"`
	Source       string            `json:"source"`
	Horizons     []HorizonForecast `json:"horizons"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// TrainingReport summarizes one completed training run.
type TrainingReport struct {
	Symbol         string        `json:"symbol"`
	Exchange       string        `json:"exchange"`
	Epochs         int           `json:"epochs"`
	BestValLoss    float64       `json:"best_val_loss"`
	FinalTrainLoss float64       `json:"final_train_loss"`
	Samples        int           `json:"samples"`
	Features       int           `json:"features"`
	Duration       time.Duration `json:"duration"`
	TrainedAt      time.Time     `json:"trained_at"`
}

// Artifact is a persisted trained model: network weights, scaler statistics
// and the feature columns the model was fitted on. Weights and Scaler are
// opaque to the domain; the forecast service owns their encoding.
type Artifact struct {
	Version      int             `json:"version"`
	Key          string          `json:"key"`
	FeatureNames []string        `json:"feature_names"`
	Seed         int64           `json:"seed"`
	Weights      json.RawMessage `json:"weights"`
	Scaler       json.RawMessage `json:"scaler"`
	Report       TrainingReport  `json:"report"`
}

// TechnicalSignal is one indicator vote.
type TechnicalSignal struct {
	Indicator string  `json:"indicator"`
	Value     float64 `json:"value"`
	Signal    string  `json:"signal"`
	Score     int     `json:"score"`
}

// SignalSummary aggregates indicator votes into an overall recommendation.
type SignalSummary struct {
	Overall string            `json:"overall"`
	Score   int               `json:"score"`
	Votes   []TechnicalSignal `json:"votes"`
}

// Analysis is the full analyze response: forecast, technical signals and the
// report of the artifact that produced the model path (nil on fallback).
type Analysis struct {
	Symbol       string                `json:"symbol"`
	Exchange     string                `json:"exchange"`
	CurrentPrice float64               `json:"current_price"`
	Forecast     *MultiHorizonForecast `json:"forecast"`
	Signals      *SignalSummary        `json:"signals,omitempty"`
	Report       *TrainingReport       `json:"training_report,omitempty"`
	GeneratedAt  time.Time             `json:"generated_at"`
}
