package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/pkg/logger"
)

func storeTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func testArtifact(key models.InstrumentKey, valLoss float64) *models.Artifact {
	return &models.Artifact{
		Version:      1,
		Key:          key.String(),
		FeatureNames: []string{"close", "momentum_5", "volume"},
		Seed:         42,
		Weights:      json.RawMessage(`{"layers":[]}`),
		Scaler:       json.RawMessage(`{"fitted":true}`),
		Report: models.TrainingReport{
			Symbol:      key.Symbol,
			Exchange:    key.Exchange,
			Epochs:      12,
			BestValLoss: valLoss,
			Samples:     180,
			Features:    3,
			TrainedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestArtifactStoreSaveLoad(t *testing.T) {
	store, err := NewFSArtifactStore(t.TempDir(), storeTestLogger(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key := models.NewInstrumentKey("AAPL", "US")
	want := testArtifact(key, 0.013)

	if err := store.Save(context.Background(), key, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	a, _ := json.Marshal(want)
	b, _ := json.Marshal(got)
	if string(a) != string(b) {
		t.Fatalf("round trip diverged:\n%s\n%s", a, b)
	}
}

func TestArtifactStoreReplace(t *testing.T) {
	store, err := NewFSArtifactStore(t.TempDir(), storeTestLogger(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key := models.NewInstrumentKey("MSFT", "US")

	if err := store.Save(context.Background(), key, testArtifact(key, 0.05)); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.Save(context.Background(), key, testArtifact(key, 0.01)); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := store.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Report.BestValLoss != 0.01 {
		t.Fatalf("expected replaced artifact, got val loss %v", got.Report.BestValLoss)
	}
}

func TestArtifactStoreMissing(t *testing.T) {
	store, err := NewFSArtifactStore(t.TempDir(), storeTestLogger(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key := models.NewInstrumentKey("GOOGL", "US")

	if _, err := store.Load(context.Background(), key); !errors.Is(err, models.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	ok, err := store.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatalf("missing artifact reported as present")
	}
}

func TestArtifactStoreDelete(t *testing.T) {
	store, err := NewFSArtifactStore(t.TempDir(), storeTestLogger(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key := models.NewInstrumentKey("TSLA", "US")

	if err := store.Save(context.Background(), key, testArtifact(key, 0.02)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(context.Background(), key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(context.Background(), key); !errors.Is(err, models.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound after delete, got %v", err)
	}

	// Deleting an absent artifact is not an error.
	if err := store.Delete(context.Background(), key); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestArtifactStoreSanitizesKey(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSArtifactStore(dir, storeTestLogger(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key := models.NewInstrumentKey("BRK/B", "US")

	if err := store.Save(context.Background(), key, testArtifact(key, 0.03)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "BRK_B.US.json")); err != nil {
		t.Fatalf("sanitized file missing: %v", err)
	}
	got, err := store.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Key != "BRK/B.US" {
		t.Fatalf("artifact key: got %s", got.Key)
	}
}

func TestArtifactStoreHonorsContext(t *testing.T) {
	store, err := NewFSArtifactStore(t.TempDir(), storeTestLogger(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key := models.NewInstrumentKey("AAPL", "US")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Save(ctx, key, testArtifact(key, 0.1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := store.Load(ctx, key); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
