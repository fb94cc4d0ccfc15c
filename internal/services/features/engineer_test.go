package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
)

func syntheticCandles(n int) []*models.Candle {
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

func TestCreateFeaturesRejectsShortSeries(t *testing.T) {
	e := NewEngineer()
	_, err := e.CreateFeatures(syntheticCandles(MinRawRows - 1))
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	if _, err := e.CreateFeatures(syntheticCandles(MinRawRows)); err != nil {
		t.Fatalf("expected %d candles to be accepted, got %v", MinRawRows, err)
	}
}

func TestCreateFeaturesDeterministic(t *testing.T) {
	e := NewEngineer()
	a, err := e.CreateFeatures(syntheticCandles(200))
	if err != nil {
		t.Fatalf("create features: %v", err)
	}
	b, err := e.CreateFeatures(syntheticCandles(200))
	if err != nil {
		t.Fatalf("create features: %v", err)
	}

	names := e.SelectFeatures(a)
	ma, err := a.Matrix(names)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	mb, err := b.Matrix(names)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	if len(ma) != len(mb) {
		t.Fatalf("row mismatch: %d vs %d", len(ma), len(mb))
	}
	for i := range ma {
		for j := range ma[i] {
			if ma[i][j] != mb[i][j] {
				t.Fatalf("row %d col %d differs: %v vs %v", i, j, ma[i][j], mb[i][j])
			}
		}
	}
}

func TestCreateFeaturesSelectedColumnsFinite(t *testing.T) {
	e := NewEngineer()
	f, err := e.CreateFeatures(syntheticCandles(250))
	if err != nil {
		t.Fatalf("create features: %v", err)
	}
	if f.Len() == 0 {
		t.Fatalf("expected usable rows after warmup drop")
	}

	names := e.SelectFeatures(f)
	if len(names) != len(e.SelectedFeatureNames()) {
		t.Fatalf("expected all %d selected columns, got %d", len(e.SelectedFeatureNames()), len(names))
	}
	m, err := f.Matrix(names)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	for i, row := range m {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite value at row %d column %s", i, names[j])
			}
		}
	}
}

func TestCreateFeaturesRepairsBadValues(t *testing.T) {
	candles := syntheticCandles(200)
	candles[50].Close = 0
	candles[51].Close = math.NaN()
	candles[80].Volume = -5

	e := NewEngineer()
	f, err := e.CreateFeatures(candles)
	if err != nil {
		t.Fatalf("create features with repairable values: %v", err)
	}
	closeCol, ok := f.Column("close")
	if !ok {
		t.Fatalf("close column missing")
	}
	for i, v := range closeCol {
		if !(v > 0) {
			t.Fatalf("non-positive close at row %d after cleanup", i)
		}
	}
}

func TestSelectFeaturesKeepsCanonicalOrder(t *testing.T) {
	e := NewEngineer()
	f, err := e.CreateFeatures(syntheticCandles(200))
	if err != nil {
		t.Fatalf("create features: %v", err)
	}
	names := e.SelectFeatures(f)
	canonical := e.SelectedFeatureNames()
	if len(names) != len(canonical) {
		t.Fatalf("expected %d columns, got %d", len(canonical), len(names))
	}
	for i := range names {
		if names[i] != canonical[i] {
			t.Fatalf("column %d: got %s, want %s", i, names[i], canonical[i])
		}
	}
}
