package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	domservice "StockPulse/internal/domain/service"
	svcmetrics "StockPulse/internal/service/metrics"
	"StockPulse/internal/services/features"
	"StockPulse/pkg/cache"
	"StockPulse/pkg/config"
	"StockPulse/pkg/logger"
	"StockPulse/pkg/queue"
)

// TrainJobType is the queue message type that triggers a background training
// run.
const TrainJobType = "train_model"

// AnalyzerUseCase answers forecast requests. Answers are cached per
// (symbol, exchange, request hash); a fallback-sourced answer enqueues a
// background training job so the next request can be served by a model.
type AnalyzerUseCase struct {
	store      domrepo.CandleStore
	forecaster domservice.HorizonForecaster
	signals    domservice.SignalEvaluator
	artifacts  domrepo.ArtifactStore
	cache      cache.Service
	queue      queue.QueueService
	cfg        config.ForecastConfig
	log        *logger.Logger
	metrics    domrepo.Metrics
}

func NewAnalyzerUseCase(
	store domrepo.CandleStore,
	forecaster domservice.HorizonForecaster,
	signals domservice.SignalEvaluator,
	artifacts domrepo.ArtifactStore,
	cacheSvc cache.Service,
	q queue.QueueService,
	cfg config.ForecastConfig,
	log *logger.Logger,
	metrics domrepo.Metrics,
) *AnalyzerUseCase {
	return &AnalyzerUseCase{
		store:      store,
		forecaster: forecaster,
		signals:    signals,
		artifacts:  artifacts,
		cache:      cacheSvc,
		queue:      q,
		cfg:        cfg,
		log:        log,
		metrics:    metrics,
	}
}

// Analyze produces a multi-horizon forecast for the requested instrument,
// optionally with technical signals.
func (uc *AnalyzerUseCase) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.Analysis, error) {
	key := req.Key()
	cacheKey := cache.GenerateKeyWithParams("forecast", key.Symbol, key.Exchange, req.Hash())

	var cached models.Analysis
	if err := uc.cache.Get(ctx, cacheKey, &cached); err == nil {
		uc.metrics.RecordMessageSent("cache_hit", key.Symbol)
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		uc.log.Warn("forecast cache read failed",
			logger.String("key", key.String()),
			logger.Error(err))
	}

	start := time.Now()
	candles, err := uc.store.GetLatestN(ctx, key, req.Lookback)
	if err != nil {
		uc.metrics.RecordError("analyze_load")
		return nil, fmt.Errorf("load candles: %w", err)
	}
	if len(candles) < features.MinRawRows {
		return nil, fmt.Errorf("%w: %d candles for %s, need at least %d",
			models.ErrInsufficientData, len(candles), key, features.MinRawRows)
	}

	price := candles[len(candles)-1].Close
	fc, err := uc.forecaster.Forecast(ctx, candles, price)
	if err != nil {
		uc.metrics.RecordError("analyze_forecast")
		svcmetrics.ForecastErrors.WithLabelValues("forecast").Inc()
		return nil, err
	}

	out := &models.Analysis{
		Symbol:       key.Symbol,
		Exchange:     key.Exchange,
		CurrentPrice: price,
		Forecast:     fc,
		GeneratedAt:  time.Now().UTC(),
	}

	svcmetrics.ForecastsServed.WithLabelValues(fc.Source).Inc()
	switch fc.Source {
	case models.SourceFallback:
		uc.metrics.RecordError("forecast_served_fallback")
		uc.enqueueTraining(ctx, key)
	case models.SourceModel:
		if artifact, aerr := uc.artifacts.Load(ctx, key); aerr == nil {
			report := artifact.Report
			out.Report = &report
		}
	}

	if req.Signals {
		summary, serr := uc.signals.Evaluate(ctx, candles)
		if serr != nil {
			uc.log.Warn("signal evaluation failed",
				logger.String("key", key.String()),
				logger.Error(serr))
		} else {
			out.Signals = summary
		}
	}

	if err := uc.cache.Set(ctx, cacheKey, out, uc.cfg.CacheTTL); err != nil {
		uc.log.Warn("forecast cache write failed",
			logger.String("key", key.String()),
			logger.Error(err))
	}

	uc.metrics.RecordLatency("analyze", time.Since(start).Seconds())
	svcmetrics.ForecastLatency.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	return out, nil
}

// enqueueTraining schedules a background model fit. Best effort: a full queue
// or missing broker never fails the request.
func (uc *AnalyzerUseCase) enqueueTraining(ctx context.Context, key models.InstrumentKey) {
	if uc.queue == nil {
		return
	}
	payload := TrainJobPayload{
		Symbol:   key.Symbol,
		Exchange: key.Exchange,
		Lookback: uc.cfg.LookbackCandles * 2,
	}
	if err := uc.queue.PublishMessage(ctx, TrainJobType, payload); err != nil {
		uc.metrics.RecordError("train_enqueue")
		uc.log.Warn("training enqueue failed",
			logger.String("key", key.String()),
			logger.Error(err))
		return
	}
	uc.log.Info("training job enqueued", logger.String("key", key.String()))
}
