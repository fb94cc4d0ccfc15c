package service

import (
	"context"

	"StockPulse/internal/domain/models"
)

// HorizonForecaster produces multi-horizon price projections from candles.
// Implementations must fail fast on an invalid current price and otherwise
// always answer; the trained-model implementation may return an error that
// the caller resolves through the fallback implementation.
type HorizonForecaster interface {
	Forecast(ctx context.Context, candles []*models.Candle, currentPrice float64) (*models.MultiHorizonForecast, error)
}

// ModelTrainer fits a model for one instrument and persists the artifact.
type ModelTrainer interface {
	Train(ctx context.Context, key models.InstrumentKey, candles []*models.Candle) (*models.TrainingReport, error)
}

// SignalEvaluator derives a rule-based technical recommendation.
type SignalEvaluator interface {
	Evaluate(ctx context.Context, candles []*models.Candle) (*models.SignalSummary, error)
}
