package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/features"
	"StockPulse/pkg/config"
	"StockPulse/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func trainerTestConfig() config.ForecastConfig {
	cfg := config.ForecastDefaults()
	cfg.SequenceLength = 10
	cfg.MinRows = 20
	cfg.Training.Epochs = 2
	cfg.Training.BatchSize = 8
	return cfg
}

func trainingFrame(t *testing.T, rows int, constantClose bool) *features.Frame {
	t.Helper()
	dates := make([]time.Time, rows)
	closeP := make([]float64, rows)
	mom := make([]float64, rows)
	vol := make([]float64, rows)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		dates[i] = base.AddDate(0, 0, i)
		if constantClose {
			closeP[i] = 100
		} else {
			closeP[i] = 100 + 5*math.Sin(float64(i)/4) + 0.1*float64(i)
		}
		mom[i] = 0.01 * math.Cos(float64(i)/5)
		vol[i] = 1e6 + 1e4*float64(i%5)
	}
	f := features.NewFrame(dates)
	for _, c := range []struct {
		name string
		vals []float64
	}{
		{"close", closeP}, {"momentum_5", mom}, {"volume", vol},
	} {
		if err := f.Add(c.name, c.vals); err != nil {
			t.Fatalf("add %s: %v", c.name, err)
		}
	}
	return f
}

var trainNames = []string{"close", "momentum_5", "volume"}

func TestTrainerFit(t *testing.T) {
	cfg := trainerTestConfig()
	tr := NewTrainer(cfg, testLogger(t))
	f := trainingFrame(t, 40, false)

	res, err := tr.Fit(context.Background(), f, trainNames)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if res.Model == nil || res.Scaler == nil || !res.Scaler.Fitted {
		t.Fatalf("incomplete result: %+v", res)
	}
	if res.Report.Samples != 40-cfg.SequenceLength {
		t.Fatalf("samples: got %d, want %d", res.Report.Samples, 40-cfg.SequenceLength)
	}
	if res.Report.Epochs == 0 || res.Report.Epochs > cfg.Training.Epochs {
		t.Fatalf("epochs: got %d", res.Report.Epochs)
	}
	if math.IsNaN(res.Report.FinalTrainLoss) || math.IsInf(res.Report.FinalTrainLoss, 0) {
		t.Fatalf("non-finite train loss %v", res.Report.FinalTrainLoss)
	}
	if math.IsNaN(res.Report.BestValLoss) || math.IsInf(res.Report.BestValLoss, 0) {
		t.Fatalf("non-finite val loss %v", res.Report.BestValLoss)
	}
}

func TestTrainerRejectsConstantTarget(t *testing.T) {
	tr := NewTrainer(trainerTestConfig(), testLogger(t))
	f := trainingFrame(t, 40, true)

	if _, err := tr.Fit(context.Background(), f, trainNames); !errors.Is(err, models.ErrConstantTarget) {
		t.Fatalf("expected ErrConstantTarget, got %v", err)
	}
}

func TestTrainerRejectsTooFewWindows(t *testing.T) {
	cfg := trainerTestConfig()
	tr := NewTrainer(cfg, testLogger(t))
	f := trainingFrame(t, cfg.SequenceLength+MinTrainingExamples-1, false)

	if _, err := tr.Fit(context.Background(), f, trainNames); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestTrainerRejectsBelowMinRows(t *testing.T) {
	cfg := trainerTestConfig()
	cfg.MinRows = 50
	tr := NewTrainer(cfg, testLogger(t))
	f := trainingFrame(t, 45, false)

	if _, err := tr.Fit(context.Background(), f, trainNames); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData below min_rows, got %v", err)
	}
}

func TestTrainerRequiresCloseColumn(t *testing.T) {
	tr := NewTrainer(trainerTestConfig(), testLogger(t))
	f := trainingFrame(t, 40, false)

	if _, err := tr.Fit(context.Background(), f, []string{"momentum_5", "volume"}); !errors.Is(err, models.ErrScaling) {
		t.Fatalf("expected ErrScaling, got %v", err)
	}
}

func TestTrainerHonorsContext(t *testing.T) {
	tr := NewTrainer(trainerTestConfig(), testLogger(t))
	f := trainingFrame(t, 40, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Fit(ctx, f, trainNames); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	cfg := trainerTestConfig()
	tr := NewTrainer(cfg, testLogger(t))
	f := trainingFrame(t, 40, false)

	res, err := tr.Fit(context.Background(), f, trainNames)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	key := models.NewInstrumentKey("aapl", "us")
	artifact, err := ArtifactFromResult(key, res, cfg.Seed)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if artifact.Key != "AAPL.US" {
		t.Fatalf("artifact key: got %s", artifact.Key)
	}
	if artifact.Report.Symbol != "AAPL" || artifact.Report.Exchange != "US" {
		t.Fatalf("report not stamped: %+v", artifact.Report)
	}

	p, err := PredictorFromArtifact(artifact, cfg)
	if err != nil {
		t.Fatalf("predictor from artifact: %v", err)
	}

	// The restored model must answer exactly like the trained one.
	raw, err := f.Matrix(trainNames)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	window, err := res.Scaler.Transform(raw[len(raw)-cfg.SequenceLength:])
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	want, err := res.Model.Predict(window)
	if err != nil {
		t.Fatalf("predict original: %v", err)
	}
	got, err := p.model.Predict(window)
	if err != nil {
		t.Fatalf("predict restored: %v", err)
	}
	if got != want {
		t.Fatalf("restored model drifted: got %v, want %v", got, want)
	}
}

func TestPredictorFromArtifactValidation(t *testing.T) {
	cfg := trainerTestConfig()
	tr := NewTrainer(cfg, testLogger(t))
	f := trainingFrame(t, 40, false)

	res, err := tr.Fit(context.Background(), f, trainNames)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	artifact, err := ArtifactFromResult(models.NewInstrumentKey("AAPL", "US"), res, cfg.Seed)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}

	bad := *artifact
	bad.FeatureNames = []string{"close"}
	if _, err := PredictorFromArtifact(&bad, cfg); !errors.Is(err, models.ErrModelInference) {
		t.Fatalf("expected ErrModelInference on feature mismatch, got %v", err)
	}

	bad = *artifact
	bad.Scaler = []byte(`{"fitted": false}`)
	if _, err := PredictorFromArtifact(&bad, cfg); !errors.Is(err, models.ErrModelInference) {
		t.Fatalf("expected ErrModelInference on unfitted scaler, got %v", err)
	}
}
