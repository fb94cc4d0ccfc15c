package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/features"
	"StockPulse/pkg/config"
)

type fakeArtifactStore struct {
	artifacts map[string]*models.Artifact
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{artifacts: make(map[string]*models.Artifact)}
}

func (s *fakeArtifactStore) Save(_ context.Context, key models.InstrumentKey, a *models.Artifact) error {
	s.artifacts[key.String()] = a
	return nil
}

func (s *fakeArtifactStore) Load(_ context.Context, key models.InstrumentKey) (*models.Artifact, error) {
	a, ok := s.artifacts[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrArtifactNotFound, key)
	}
	return a, nil
}

func (s *fakeArtifactStore) Exists(_ context.Context, key models.InstrumentKey) (bool, error) {
	_, ok := s.artifacts[key.String()]
	return ok, nil
}

func (s *fakeArtifactStore) Delete(_ context.Context, key models.InstrumentKey) error {
	delete(s.artifacts, key.String())
	return nil
}

type noopMetrics struct{}

func (noopMetrics) RecordMessageSent(string, string) {}
func (noopMetrics) RecordError(string)               {}
func (noopMetrics) RecordLastPrice(string, float64)  {}
func (noopMetrics) RecordLatency(string, float64)    {}

func newTestEngine(t *testing.T, cfg config.ForecastConfig, store *fakeArtifactStore) *Engine {
	t.Helper()
	return NewEngine(features.NewEngineer(), store, cfg, testLogger(t), noopMetrics{})
}

func syntheticEngineCandles(n int) []*models.Candle {
	out := make([]*models.Candle, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100 + 10*math.Sin(float64(i)/7) + 0.05*float64(i)
		out[i] = &models.Candle{
			Bucket:   base.AddDate(0, 0, i),
			Symbol:   "AAPL",
			Exchange: "US",
			Open:     price * 0.995,
			High:     price * 1.01,
			Low:      price * 0.99,
			Close:    price,
			Volume:   1e6 + 5e4*math.Cos(float64(i)/3),
		}
	}
	return out
}

func TestEngineFallsBackWithoutArtifact(t *testing.T) {
	cfg := trainerTestConfig()
	engine := newTestEngine(t, cfg, newFakeArtifactStore())

	candles := trendCandles(80, 0.01)
	price := candles[len(candles)-1].Close

	out, err := engine.Forecast(context.Background(), candles, price)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if out.Source != models.SourceFallback {
		t.Fatalf("source: got %s, want fallback", out.Source)
	}
	if out.Symbol != "AAPL" || out.Exchange != "US" {
		t.Fatalf("instrument not stamped: %s.%s", out.Symbol, out.Exchange)
	}

	// The engine's fallback answer is exactly the heuristic's answer.
	direct, err := NewFallback(cfg.Fallback).Predict(candles, price)
	if err != nil {
		t.Fatalf("direct fallback: %v", err)
	}
	direct.Symbol = "AAPL"
	direct.Exchange = "US"
	direct.GeneratedAt = out.GeneratedAt

	a, _ := json.Marshal(out)
	b, _ := json.Marshal(direct)
	if !bytes.Equal(a, b) {
		t.Fatalf("engine fallback diverged:\n%s\n%s", a, b)
	}
}

func TestEngineRejectsInvalidPrice(t *testing.T) {
	engine := newTestEngine(t, trainerTestConfig(), newFakeArtifactStore())

	if _, err := engine.Forecast(context.Background(), trendCandles(80, 0.01), 0); !errors.Is(err, models.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestEngineRejectsEmptyCandles(t *testing.T) {
	engine := newTestEngine(t, trainerTestConfig(), newFakeArtifactStore())

	if _, err := engine.Forecast(context.Background(), nil, 100); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestEngineUsesTrainedArtifact(t *testing.T) {
	cfg := trainerTestConfig()
	cfg.MCSamples = 5
	store := newFakeArtifactStore()
	engine := newTestEngine(t, cfg, store)

	candles := syntheticEngineCandles(200)
	key := models.NewInstrumentKey("AAPL", "US")

	frame, err := engine.engineer.CreateFeatures(candles)
	if err != nil {
		t.Fatalf("features: %v", err)
	}
	tr := NewTrainer(cfg, testLogger(t))
	res, err := tr.Fit(context.Background(), frame, engine.engineer.SelectFeatures(frame))
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	artifact, err := ArtifactFromResult(key, res, cfg.Seed)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if err := store.Save(context.Background(), key, artifact); err != nil {
		t.Fatalf("save: %v", err)
	}

	price := candles[len(candles)-1].Close
	out, err := engine.Forecast(context.Background(), candles, price)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if out.Source != models.SourceModel {
		t.Fatalf("source: got %s, want model", out.Source)
	}
}
