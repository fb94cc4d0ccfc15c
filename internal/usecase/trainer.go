package usecase

import (
	"context"
	"fmt"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	domservice "StockPulse/internal/domain/service"
	"StockPulse/internal/services/features"
	"StockPulse/internal/services/forecast"
	"StockPulse/pkg/cache"
	"StockPulse/pkg/config"
	"StockPulse/pkg/logger"
)

// TrainUseCase fits a model for one instrument, packages the result as an
// artifact and swaps it into the artifact store. A per-instrument cache lock
// keeps concurrent runs for the same instrument from racing; a second caller
// gets ErrTrainingInProgress.
type TrainUseCase struct {
	engineer  *features.Engineer
	trainer   *forecast.Trainer
	artifacts domrepo.ArtifactStore
	cache     cache.Service
	cfg       config.ForecastConfig
	log       *logger.Logger
	metrics   domrepo.Metrics
}

func NewTrainUseCase(
	engineer *features.Engineer,
	trainer *forecast.Trainer,
	artifacts domrepo.ArtifactStore,
	cacheSvc cache.Service,
	cfg config.ForecastConfig,
	log *logger.Logger,
	metrics domrepo.Metrics,
) *TrainUseCase {
	return &TrainUseCase{
		engineer:  engineer,
		trainer:   trainer,
		artifacts: artifacts,
		cache:     cacheSvc,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
	}
}

var _ domservice.ModelTrainer = (*TrainUseCase)(nil)

func (uc *TrainUseCase) Train(ctx context.Context, key models.InstrumentKey, candles []*models.Candle) (*models.TrainingReport, error) {
	lockKey := cache.GenerateKey("train", key.String())
	ok, err := uc.cache.TryLock(ctx, lockKey, uc.cfg.TrainLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire training lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTrainingInProgress, key)
	}
	defer func() {
		if err := uc.cache.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
			uc.log.Warn("release training lock failed",
				logger.String("key", key.String()),
				logger.Error(err))
		}
	}()

	start := time.Now()
	uc.log.Info("training started",
		logger.String("key", key.String()),
		logger.Int("candles", len(candles)))

	frame, err := uc.engineer.CreateFeatures(candles)
	if err != nil {
		uc.metrics.RecordError("train_features")
		return nil, err
	}

	res, err := uc.trainer.Fit(ctx, frame, uc.engineer.SelectFeatures(frame))
	if err != nil {
		uc.metrics.RecordError("train_fit")
		return nil, err
	}

	artifact, err := forecast.ArtifactFromResult(key, res, uc.cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := uc.artifacts.Save(ctx, key, artifact); err != nil {
		uc.metrics.RecordError("train_save")
		return nil, fmt.Errorf("persist artifact: %w", err)
	}

	// Cached forecasts for this instrument predate the new model.
	pattern := cache.GenerateKeyWithParams("forecast", key.Symbol, key.Exchange, "*")
	if err := uc.cache.DeleteByPattern(ctx, pattern); err != nil {
		uc.log.Warn("forecast cache invalidation failed",
			logger.String("key", key.String()),
			logger.Error(err))
	}

	uc.metrics.RecordLatency("train", time.Since(start).Seconds())
	uc.log.Info("training finished",
		logger.String("key", key.String()),
		logger.Int("epochs", artifact.Report.Epochs),
		logger.Float64("best_val_loss", artifact.Report.BestValLoss),
		logger.Duration("duration_ms", time.Since(start)))

	report := artifact.Report
	return &report, nil
}
