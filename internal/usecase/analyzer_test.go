package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/features"
	"StockPulse/pkg/cache"
	"StockPulse/pkg/config"
	"StockPulse/pkg/logger"
)

type fakeCandleStore struct {
	candles []*models.Candle
	err     error
	calls   int
}

func (s *fakeCandleStore) Init(context.Context) error                  { return nil }
func (s *fakeCandleStore) Store(context.Context, *models.Candle) error { return nil }
func (s *fakeCandleStore) StoreBatch(context.Context, []*models.Candle) error {
	return nil
}
func (s *fakeCandleStore) GetLatestN(_ context.Context, _ models.InstrumentKey, _ int) ([]*models.Candle, error) {
	s.calls++
	return s.candles, s.err
}
func (s *fakeCandleStore) GetRange(_ context.Context, _ models.InstrumentKey, _, _ time.Time, _ int) ([]*models.Candle, error) {
	return s.candles, s.err
}
func (s *fakeCandleStore) Health(context.Context) error { return nil }
func (s *fakeCandleStore) Close() error                 { return nil }

type fakeForecaster struct {
	source string
	err    error
}

func (f *fakeForecaster) Forecast(_ context.Context, _ []*models.Candle, price float64) (*models.MultiHorizonForecast, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.MultiHorizonForecast{
		CurrentPrice: price,
		Source:       f.source,
		Horizons: []models.HorizonForecast{
			{Horizon: models.HorizonIntraday, Target: price, Confidence: 70},
		},
		GeneratedAt: time.Now().UTC(),
	}, nil
}

type fakeEvaluator struct {
	err error
}

func (e *fakeEvaluator) Evaluate(context.Context, []*models.Candle) (*models.SignalSummary, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &models.SignalSummary{Overall: "HOLD"}, nil
}

type fakeArtifacts struct {
	artifacts map[string]*models.Artifact
}

func (s *fakeArtifacts) Save(_ context.Context, key models.InstrumentKey, a *models.Artifact) error {
	if s.artifacts == nil {
		s.artifacts = make(map[string]*models.Artifact)
	}
	s.artifacts[key.String()] = a
	return nil
}
func (s *fakeArtifacts) Load(_ context.Context, key models.InstrumentKey) (*models.Artifact, error) {
	a, ok := s.artifacts[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrArtifactNotFound, key)
	}
	return a, nil
}
func (s *fakeArtifacts) Exists(_ context.Context, key models.InstrumentKey) (bool, error) {
	_, ok := s.artifacts[key.String()]
	return ok, nil
}
func (s *fakeArtifacts) Delete(_ context.Context, key models.InstrumentKey) error {
	delete(s.artifacts, key.String())
	return nil
}

type fakeQueue struct {
	published []string
	err       error
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, _ interface{}) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, msgType)
	return nil
}

type recordingMetrics struct {
	errors []string
}

func (m *recordingMetrics) RecordMessageSent(string, string) {}
func (m *recordingMetrics) RecordError(kind string)          { m.errors = append(m.errors, kind) }
func (m *recordingMetrics) RecordLastPrice(string, float64)  {}
func (m *recordingMetrics) RecordLatency(string, float64)    {}

func ucTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func flatCandles(n int, price float64) []*models.Candle {
	out := make([]*models.Candle, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		out[i] = &models.Candle{
			Bucket:   base.AddDate(0, 0, i),
			Symbol:   "AAPL",
			Exchange: "US",
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
			Volume:   1e6,
		}
	}
	return out
}

func newAnalyzer(
	store *fakeCandleStore,
	fc *fakeForecaster,
	q *fakeQueue,
	m *recordingMetrics,
	t *testing.T,
) *AnalyzerUseCase {
	t.Helper()
	cfg := config.ForecastDefaults()
	return NewAnalyzerUseCase(
		store,
		fc,
		&fakeEvaluator{},
		&fakeArtifacts{},
		cache.NewMemoryCache(),
		q,
		cfg,
		ucTestLogger(t),
		m,
	)
}

func TestAnalyzeFallbackEnqueuesTraining(t *testing.T) {
	store := &fakeCandleStore{candles: flatCandles(100, 150)}
	q := &fakeQueue{}
	m := &recordingMetrics{}
	uc := newAnalyzer(store, &fakeForecaster{source: models.SourceFallback}, q, m, t)

	req := models.AnalyzeRequest{Symbol: "aapl", Exchange: "us", Lookback: 100}
	out, err := uc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Symbol != "AAPL" || out.Exchange != "US" {
		t.Fatalf("instrument not normalized: %s.%s", out.Symbol, out.Exchange)
	}
	if out.CurrentPrice != 150 {
		t.Fatalf("current price: got %v, want 150", out.CurrentPrice)
	}
	if out.GeneratedAt.IsZero() {
		t.Fatalf("generated_at not stamped")
	}
	if len(q.published) != 1 || q.published[0] != TrainJobType {
		t.Fatalf("expected one %s job, got %v", TrainJobType, q.published)
	}
}

func TestAnalyzeCacheHitSkipsStore(t *testing.T) {
	store := &fakeCandleStore{candles: flatCandles(100, 150)}
	uc := newAnalyzer(store, &fakeForecaster{source: models.SourceFallback}, &fakeQueue{}, &recordingMetrics{}, t)

	req := models.AnalyzeRequest{Symbol: "AAPL", Exchange: "US", Lookback: 100}
	first, err := uc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	second, err := uc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("store queried %d times, want 1", store.calls)
	}
	if !first.GeneratedAt.Equal(second.GeneratedAt) {
		t.Fatalf("cached answer regenerated: %v vs %v", first.GeneratedAt, second.GeneratedAt)
	}
}

func TestAnalyzeDifferentLookbackMissesCache(t *testing.T) {
	store := &fakeCandleStore{candles: flatCandles(100, 150)}
	uc := newAnalyzer(store, &fakeForecaster{source: models.SourceFallback}, &fakeQueue{}, &recordingMetrics{}, t)

	if _, err := uc.Analyze(context.Background(), models.AnalyzeRequest{Symbol: "AAPL", Exchange: "US", Lookback: 100}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if _, err := uc.Analyze(context.Background(), models.AnalyzeRequest{Symbol: "AAPL", Exchange: "US", Lookback: 200}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("store queried %d times, want 2", store.calls)
	}
}

func TestAnalyzeEmptyTape(t *testing.T) {
	uc := newAnalyzer(&fakeCandleStore{}, &fakeForecaster{source: models.SourceFallback}, &fakeQueue{}, &recordingMetrics{}, t)

	req := models.AnalyzeRequest{Symbol: "AAPL", Exchange: "US", Lookback: 100}
	if _, err := uc.Analyze(context.Background(), req); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestAnalyzeThinTape(t *testing.T) {
	store := &fakeCandleStore{candles: flatCandles(features.MinRawRows-1, 150)}
	fc := &fakeForecaster{source: models.SourceFallback}
	uc := newAnalyzer(store, fc, &fakeQueue{}, &recordingMetrics{}, t)

	req := models.AnalyzeRequest{Symbol: "AAPL", Exchange: "US", Lookback: 100}
	if _, err := uc.Analyze(context.Background(), req); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData below %d candles, got %v", features.MinRawRows, err)
	}

	// Exactly the minimum passes through to the forecaster.
	store.candles = flatCandles(features.MinRawRows, 150)
	if _, err := uc.Analyze(context.Background(), req); err != nil {
		t.Fatalf("analyze at the minimum: %v", err)
	}
}

func TestAnalyzeAttachesSignals(t *testing.T) {
	store := &fakeCandleStore{candles: flatCandles(100, 150)}
	uc := newAnalyzer(store, &fakeForecaster{source: models.SourceFallback}, &fakeQueue{}, &recordingMetrics{}, t)

	out, err := uc.Analyze(context.Background(), models.AnalyzeRequest{Symbol: "AAPL", Exchange: "US", Lookback: 100, Signals: true})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Signals == nil || out.Signals.Overall != "HOLD" {
		t.Fatalf("signals not attached: %+v", out.Signals)
	}
}

func TestAnalyzeSignalFailureIsSoft(t *testing.T) {
	store := &fakeCandleStore{candles: flatCandles(100, 150)}
	uc := NewAnalyzerUseCase(
		store,
		&fakeForecaster{source: models.SourceFallback},
		&fakeEvaluator{err: errors.New("indicator blew up")},
		&fakeArtifacts{},
		cache.NewMemoryCache(),
		&fakeQueue{},
		config.ForecastDefaults(),
		ucTestLogger(t),
		&recordingMetrics{},
	)

	out, err := uc.Analyze(context.Background(), models.AnalyzeRequest{Symbol: "AAPL", Exchange: "US", Lookback: 100, Signals: true})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Signals != nil {
		t.Fatalf("expected no signals on evaluator failure")
	}
}

func TestAnalyzeModelSourceSkipsEnqueue(t *testing.T) {
	store := &fakeCandleStore{candles: flatCandles(100, 150)}
	q := &fakeQueue{}
	uc := newAnalyzer(store, &fakeForecaster{source: models.SourceModel}, q, &recordingMetrics{}, t)

	if _, err := uc.Analyze(context.Background(), models.AnalyzeRequest{Symbol: "AAPL", Exchange: "US", Lookback: 100}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(q.published) != 0 {
		t.Fatalf("model-sourced answer should not enqueue training, got %v", q.published)
	}
}

func TestAnalyzeQueueFailureIsSoft(t *testing.T) {
	store := &fakeCandleStore{candles: flatCandles(100, 150)}
	m := &recordingMetrics{}
	uc := newAnalyzer(store, &fakeForecaster{source: models.SourceFallback}, &fakeQueue{err: errors.New("broker down")}, m, t)

	if _, err := uc.Analyze(context.Background(), models.AnalyzeRequest{Symbol: "AAPL", Exchange: "US", Lookback: 100}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	found := false
	for _, kind := range m.errors {
		if kind == "train_enqueue" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected train_enqueue error metric, got %v", m.errors)
	}
}

func TestAnalyzeForecastErrorPropagates(t *testing.T) {
	store := &fakeCandleStore{candles: flatCandles(100, 150)}
	uc := newAnalyzer(store, &fakeForecaster{err: models.ErrInvalidPrice}, &fakeQueue{}, &recordingMetrics{}, t)

	if _, err := uc.Analyze(context.Background(), models.AnalyzeRequest{Symbol: "AAPL", Exchange: "US", Lookback: 100}); !errors.Is(err, models.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}
