package usecase

import (
	"context"
	"errors"
	"fmt"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	domservice "StockPulse/internal/domain/service"
	svcmetrics "StockPulse/internal/service/metrics"
	"StockPulse/pkg/logger"
	"StockPulse/pkg/queue"
)

// TrainJobPayload is the queue payload for a background training run.
type TrainJobPayload struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Lookback int    `json:"lookback"`
}

// TrainJob consumes train_model messages and runs a model fit.
type TrainJob struct {
	store   domrepo.CandleStore
	trainer domservice.ModelTrainer
	log     *logger.Logger
}

func NewTrainJob(store domrepo.CandleStore, trainer domservice.ModelTrainer, log *logger.Logger) *TrainJob {
	return &TrainJob{store: store, trainer: trainer, log: log}
}

var _ queue.Job = (*TrainJob)(nil)

func (j *TrainJob) Name() string { return "train_model" }
func (j *TrainJob) Type() string { return TrainJobType }

func (j *TrainJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[TrainJobPayload](payload)
	if err != nil {
		return fmt.Errorf("train job payload: %w", err)
	}
	if p.Symbol == "" {
		return fmt.Errorf("train job: symbol required")
	}
	if p.Lookback <= 0 {
		p.Lookback = 1000
	}

	key := models.NewInstrumentKey(p.Symbol, p.Exchange)
	candles, err := j.store.GetLatestN(ctx, key, p.Lookback)
	if err != nil {
		return fmt.Errorf("train job load candles: %w", err)
	}

	report, err := j.trainer.Train(ctx, key, candles)
	if err != nil {
		// Another worker already holds the instrument; the artifact it
		// produces serves this job's purpose too.
		if errors.Is(err, models.ErrTrainingInProgress) {
			svcmetrics.TrainingRuns.WithLabelValues("skipped").Inc()
			j.log.Info("training already running, skipping",
				logger.String("key", key.String()))
			return nil
		}
		// Too little history will not fix itself on retry.
		if errors.Is(err, models.ErrInsufficientData) || errors.Is(err, models.ErrConstantTarget) {
			svcmetrics.TrainingRuns.WithLabelValues("rejected").Inc()
			j.log.Warn("training not possible for instrument",
				logger.String("key", key.String()),
				logger.Error(err))
			return nil
		}
		svcmetrics.TrainingRuns.WithLabelValues("failed").Inc()
		return err
	}
	svcmetrics.TrainingRuns.WithLabelValues("completed").Inc()

	j.log.Info("background training completed",
		logger.String("key", key.String()),
		logger.Int("epochs", report.Epochs),
		logger.Float64("best_val_loss", report.BestValLoss))
	return nil
}
