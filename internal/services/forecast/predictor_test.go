package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/features"
	"StockPulse/pkg/config"
)

func TestConfidenceFromDispersion(t *testing.T) {
	cases := []struct {
		std, price float64
		want       int
	}{
		{0, 100, 95},        // zero spread clamps at the ceiling
		{5, 100, 95},        // 95 exactly
		{10, 100, 90},       // 100*(1-0.1)
		{40, 100, 60},       // 100*(1-0.4)
		{80, 100, 60},       // below the floor clamps up
		{math.NaN(), 100, defaultConfidence},
		{math.Inf(1), 100, defaultConfidence},
	}
	for _, tc := range cases {
		if got := ConfidenceFromDispersion(tc.std, tc.price); got != tc.want {
			t.Fatalf("std=%v price=%v: got %d, want %d", tc.std, tc.price, got, tc.want)
		}
	}
}

func TestConfidenceMonotoneInDispersion(t *testing.T) {
	prev := 100
	for std := 0.0; std <= 60; std += 2.5 {
		c := ConfidenceFromDispersion(std, 100)
		if c < confFloor || c > confCeil {
			t.Fatalf("std=%v: confidence %d outside [%d, %d]", std, c, confFloor, confCeil)
		}
		if c > prev {
			t.Fatalf("std=%v: confidence rose from %d to %d", std, prev, c)
		}
		prev = c
	}
}

func TestHorizonConfidenceDiscount(t *testing.T) {
	h := config.ForecastDefaults().Horizons

	if got := discount(90, h.Weekly); got != 85 {
		t.Fatalf("weekly from 90: got %d, want 85", got)
	}
	if got := discount(90, h.Monthly); got != 80 {
		t.Fatalf("monthly from 90: got %d, want 80", got)
	}
	if got := discount(90, h.LongTerm); got != 70 {
		t.Fatalf("longterm from 90: got %d, want 70", got)
	}

	// Near the floor the decrement can never push below it.
	if got := discount(58, h.Weekly); got != 65 {
		t.Fatalf("weekly from 58: got %d, want floor 65", got)
	}
	if got := discount(58, h.Monthly); got != 60 {
		t.Fatalf("monthly from 58: got %d, want floor 60", got)
	}
	if got := discount(58, h.LongTerm); got != 55 {
		t.Fatalf("longterm from 58: got %d, want floor 55", got)
	}
}

func TestValidatePrice(t *testing.T) {
	if err := ValidatePrice(101.5); err != nil {
		t.Fatalf("valid price rejected: %v", err)
	}
	for _, price := range []float64{0, -1, math.NaN(), math.Inf(-1)} {
		if err := ValidatePrice(price); !errors.Is(err, models.ErrInvalidPrice) {
			t.Fatalf("price %v: expected ErrInvalidPrice, got %v", price, err)
		}
	}
}

func predictorTestConfig() config.ForecastConfig {
	cfg := config.ForecastDefaults()
	cfg.SequenceLength = 10
	cfg.MCSamples = 5
	return cfg
}

func predictorFrame(t *testing.T, rows int, withLongMomentum bool) *features.Frame {
	t.Helper()
	dates := make([]time.Time, rows)
	closeP := make([]float64, rows)
	m5 := make([]float64, rows)
	vol := make([]float64, rows)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		dates[i] = base.AddDate(0, 0, i)
		closeP[i] = 100 + float64(i)
		m5[i] = 0.004
		vol[i] = 1e6
	}
	f := features.NewFrame(dates)
	for name, vals := range map[string][]float64{
		"close": closeP, "momentum_5": m5, "volume": vol,
	} {
		if err := f.Add(name, vals); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	if withLongMomentum {
		m20 := make([]float64, rows)
		for i := range m20 {
			m20[i] = 0.02
		}
		if err := f.Add("momentum_20", m20); err != nil {
			t.Fatalf("add momentum_20: %v", err)
		}
	}
	return f
}

func newTestPredictor(t *testing.T, f *features.Frame, cfg config.ForecastConfig) *Predictor {
	t.Helper()
	names := []string{"close", "momentum_5", "volume"}
	raw, err := f.Matrix(names)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	scaler := NewRobustScaler()
	if err := scaler.Fit(raw, names); err != nil {
		t.Fatalf("fit scaler: %v", err)
	}
	model := NewModel(len(names), cfg.Seed)
	return NewPredictor(model, scaler, names, cfg)
}

func TestPredictMultiHorizonShape(t *testing.T) {
	cfg := predictorTestConfig()
	f := predictorFrame(t, 30, true)
	p := newTestPredictor(t, f, cfg)

	out, err := p.PredictMultiHorizon(f, 129)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out.Source != models.SourceModel {
		t.Fatalf("source: got %s", out.Source)
	}
	if len(out.Horizons) != 4 {
		t.Fatalf("horizons: got %d, want 4", len(out.Horizons))
	}

	wantOrder := []models.Horizon{
		models.HorizonIntraday, models.HorizonWeekly, models.HorizonMonthly, models.HorizonLongTerm,
	}
	for i, h := range out.Horizons {
		if h.Horizon != wantOrder[i] {
			t.Fatalf("horizon %d: got %s, want %s", i, h.Horizon, wantOrder[i])
		}
		if h.Confidence < 50 || h.Confidence > confCeil {
			t.Fatalf("%s confidence %d out of range", h.Horizon, h.Confidence)
		}
	}

	base := out.Horizons[0].Confidence
	if out.Horizons[1].Confidence > base || out.Horizons[2].Confidence > out.Horizons[1].Confidence {
		t.Fatalf("confidence should not rise with horizon: %v", out.Horizons)
	}

	// Weekly and monthly projections follow the short momentum column.
	weekly := round2(129 * (1 + 0.004*cfg.Horizons.Weekly.MomentumScale))
	if out.Horizons[1].Target != weekly {
		t.Fatalf("weekly target: got %v, want %v", out.Horizons[1].Target, weekly)
	}
	longterm := round2(129 * (1 + 0.02*cfg.Horizons.LongTerm.MomentumScale))
	if out.Horizons[3].Target != longterm {
		t.Fatalf("longterm target: got %v, want %v", out.Horizons[3].Target, longterm)
	}
}

func TestPredictMultiHorizonMissingLongMomentum(t *testing.T) {
	cfg := predictorTestConfig()
	f := predictorFrame(t, 30, false)
	p := newTestPredictor(t, f, cfg)

	out, err := p.PredictMultiHorizon(f, 129)
	if err != nil {
		t.Fatalf("predict without momentum_20: %v", err)
	}
	// The long horizon falls back to the short momentum column.
	want := round2(129 * (1 + 0.004*cfg.Horizons.LongTerm.MomentumScale))
	if out.Horizons[3].Target != want {
		t.Fatalf("longterm target: got %v, want %v", out.Horizons[3].Target, want)
	}
}

func TestPredictMultiHorizonSubstitutesMomentumBase(t *testing.T) {
	cfg := predictorTestConfig()
	f := predictorFrame(t, 30, true)
	rets := make([]float64, 30)
	for i := range rets {
		rets[i] = 0.01
	}
	if err := f.Add("returns", rets); err != nil {
		t.Fatalf("add returns: %v", err)
	}

	p := newTestPredictor(t, f, cfg)
	for _, param := range p.model.params() {
		for i := range param.W {
			param.W[i] = math.NaN()
		}
	}

	out, err := p.PredictMultiHorizon(f, 129)
	if err != nil {
		t.Fatalf("expected momentum substitution, got %v", err)
	}
	if out.Source != models.SourceModel {
		t.Fatalf("source: got %s, want model", out.Source)
	}

	// The base collapses to current price times the mean recent return.
	want := round2(129 * 1.01)
	if out.Horizons[0].Target != want {
		t.Fatalf("intraday target: got %v, want %v", out.Horizons[0].Target, want)
	}
	// Every Monte-Carlo sample is invalid, so confidence takes the default.
	if out.Horizons[0].Confidence != defaultConfidence {
		t.Fatalf("intraday confidence: got %d, want %d", out.Horizons[0].Confidence, defaultConfidence)
	}
	// Longer horizons still project from the momentum columns.
	weekly := round2(129 * (1 + 0.004*cfg.Horizons.Weekly.MomentumScale))
	if out.Horizons[1].Target != weekly {
		t.Fatalf("weekly target: got %v, want %v", out.Horizons[1].Target, weekly)
	}
}

func TestPredictMultiHorizonNaNBaseWithoutReturns(t *testing.T) {
	cfg := predictorTestConfig()
	f := predictorFrame(t, 30, false)

	p := newTestPredictor(t, f, cfg)
	for _, param := range p.model.params() {
		for i := range param.W {
			param.W[i] = math.NaN()
		}
	}

	out, err := p.PredictMultiHorizon(f, 129)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	// No returns column: the substitute base is the current price itself.
	if out.Horizons[0].Target != round2(129) {
		t.Fatalf("intraday target: got %v, want %v", out.Horizons[0].Target, round2(129))
	}
}

func TestPredictMultiHorizonShortFrame(t *testing.T) {
	cfg := predictorTestConfig()
	f := predictorFrame(t, cfg.SequenceLength-1, true)
	p := newTestPredictor(t, f, cfg)

	if _, err := p.PredictMultiHorizon(f, 100); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestPredictMultiHorizonDeterministic(t *testing.T) {
	cfg := predictorTestConfig()
	f := predictorFrame(t, 30, true)

	a, err := newTestPredictor(t, f, cfg).PredictMultiHorizon(f, 129)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	b, err := newTestPredictor(t, f, cfg).PredictMultiHorizon(f, 129)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for i := range a.Horizons {
		if a.Horizons[i] != b.Horizons[i] {
			t.Fatalf("horizon %d differs across seeded runs: %+v vs %+v", i, a.Horizons[i], b.Horizons[i])
		}
	}
}
