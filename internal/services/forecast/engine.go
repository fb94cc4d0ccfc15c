package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	domservice "StockPulse/internal/domain/service"
	"StockPulse/internal/services/features"
	"StockPulse/pkg/config"
	"StockPulse/pkg/logger"
)

// Engine is the layered forecaster: trained model first, momentum fallback
// when the model path cannot answer. Every inference failure except an
// invalid reference price is absorbed.
type Engine struct {
	engineer  *features.Engineer
	artifacts domrepo.ArtifactStore
	fallback  *Fallback
	cfg       config.ForecastConfig
	log       *logger.Logger
	metrics   domrepo.Metrics
}

func NewEngine(
	engineer *features.Engineer,
	artifacts domrepo.ArtifactStore,
	cfg config.ForecastConfig,
	log *logger.Logger,
	metrics domrepo.Metrics,
) *Engine {
	return &Engine{
		engineer:  engineer,
		artifacts: artifacts,
		fallback:  NewFallback(cfg.Fallback),
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
	}
}

var _ domservice.HorizonForecaster = (*Engine)(nil)

// Forecast answers from the trained model when an artifact exists and the
// window is usable, otherwise from the fallback heuristic.
func (e *Engine) Forecast(ctx context.Context, candles []*models.Candle, currentPrice float64) (*models.MultiHorizonForecast, error) {
	if err := ValidatePrice(currentPrice); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles", models.ErrInsufficientData)
	}

	last := candles[len(candles)-1]
	key := models.NewInstrumentKey(last.Symbol, last.Exchange)

	out, err := e.modelForecast(ctx, key, candles, currentPrice)
	if err != nil {
		e.log.Warn("model path unavailable, using fallback",
			logger.String("key", key.String()),
			logger.Error(err))
		e.metrics.RecordError("forecast_fallback")
		out, err = e.fallback.Predict(candles, currentPrice)
		if err != nil {
			return nil, err
		}
	}

	out.Symbol = key.Symbol
	out.Exchange = key.Exchange
	out.GeneratedAt = time.Now().UTC()
	return out, nil
}

func (e *Engine) modelForecast(ctx context.Context, key models.InstrumentKey, candles []*models.Candle, currentPrice float64) (*models.MultiHorizonForecast, error) {
	artifact, err := e.artifacts.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	predictor, err := PredictorFromArtifact(artifact, e.cfg)
	if err != nil {
		return nil, err
	}

	frame, err := e.engineer.CreateFeatures(candles)
	if err != nil {
		return nil, err
	}

	return predictor.PredictMultiHorizon(frame, currentPrice)
}

// PredictorFromArtifact reconstructs the model and scaler from a persisted
// artifact.
func PredictorFromArtifact(a *models.Artifact, cfg config.ForecastConfig) (*Predictor, error) {
	model, err := ImportModel(a.Weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelInference, err)
	}

	scaler := NewRobustScaler()
	if err := json.Unmarshal(a.Scaler, scaler); err != nil {
		return nil, fmt.Errorf("%w: decode scaler: %v", models.ErrModelInference, err)
	}
	if !scaler.Fitted {
		return nil, fmt.Errorf("%w: artifact scaler not fitted", models.ErrModelInference)
	}
	if model.Features() != len(a.FeatureNames) {
		return nil, fmt.Errorf("%w: model expects %d features, artifact lists %d",
			models.ErrModelInference, model.Features(), len(a.FeatureNames))
	}

	return NewPredictor(model, scaler, a.FeatureNames, cfg), nil
}

// ArtifactFromResult packages a finished training run for persistence.
func ArtifactFromResult(key models.InstrumentKey, res *TrainResult, seed int64) (*models.Artifact, error) {
	weights, err := res.Model.ExportWeights()
	if err != nil {
		return nil, fmt.Errorf("encode model weights: %w", err)
	}
	scaler, err := json.Marshal(res.Scaler)
	if err != nil {
		return nil, fmt.Errorf("encode scaler: %w", err)
	}
	report := res.Report
	report.Symbol = key.Symbol
	report.Exchange = key.Exchange
	return &models.Artifact{
		Version:      1,
		Key:          key.String(),
		FeatureNames: res.FeatureNames,
		Seed:         seed,
		Weights:      weights,
		Scaler:       scaler,
		Report:       report,
	}, nil
}
