package signals

import (
	"context"
	"math"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/features"
)

func signalFrame(t *testing.T, cols map[string]float64) *features.Frame {
	t.Helper()
	rows := 3
	dates := make([]time.Time, rows)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = base.AddDate(0, 0, i)
	}
	f := features.NewFrame(dates)
	for name, last := range cols {
		vals := []float64{last, last, last}
		if err := f.Add(name, vals); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	return f
}

func TestEvaluateFrameBullishAlignment(t *testing.T) {
	g := NewGenerator(features.NewEngineer())
	f := signalFrame(t, map[string]float64{
		"rsi_14":      25,   // oversold, +2
		"macd_diff":   0.4,  // rising histogram, +1
		"close":       110,  // above trend, +1
		"sma_50":      100,  //
		"bb_position": 0.02, // hugging the lower band, +1
	})

	sum := g.EvaluateFrame(f)
	if sum.Score != 5 {
		t.Fatalf("score: got %d, want 5", sum.Score)
	}
	if sum.Overall != StrongBuy {
		t.Fatalf("overall: got %s, want %s", sum.Overall, StrongBuy)
	}
	if len(sum.Votes) != 4 {
		t.Fatalf("votes: got %d, want 4", len(sum.Votes))
	}
}

func TestEvaluateFrameBearishAlignment(t *testing.T) {
	g := NewGenerator(features.NewEngineer())
	f := signalFrame(t, map[string]float64{
		"rsi_14":      78,
		"macd_diff":   -0.3,
		"close":       90,
		"sma_50":      100,
		"bb_position": 0.99,
	})

	sum := g.EvaluateFrame(f)
	if sum.Score != -5 {
		t.Fatalf("score: got %d, want -5", sum.Score)
	}
	if sum.Overall != StrongSell {
		t.Fatalf("overall: got %s, want %s", sum.Overall, StrongSell)
	}
}

func TestEvaluateFrameNeutralRSIHolds(t *testing.T) {
	g := NewGenerator(features.NewEngineer())
	f := signalFrame(t, map[string]float64{"rsi_14": 55})

	sum := g.EvaluateFrame(f)
	if len(sum.Votes) != 1 {
		t.Fatalf("votes: got %d, want 1", len(sum.Votes))
	}
	v := sum.Votes[0]
	if v.Indicator != "rsi" || v.Signal != Hold || v.Score != 0 {
		t.Fatalf("unexpected vote: %+v", v)
	}
	if sum.Overall != Hold {
		t.Fatalf("overall: got %s, want %s", sum.Overall, Hold)
	}
}

func TestEvaluateFrameSkipsMissingAndNonFinite(t *testing.T) {
	g := NewGenerator(features.NewEngineer())
	f := signalFrame(t, map[string]float64{
		"rsi_14":    math.NaN(),
		"macd_diff": 0.2,
		"close":     100, // no sma_50, trend vote skipped
	})

	sum := g.EvaluateFrame(f)
	if len(sum.Votes) != 1 {
		t.Fatalf("votes: got %d, want 1", len(sum.Votes))
	}
	if sum.Votes[0].Indicator != "macd" {
		t.Fatalf("vote indicator: got %s, want macd", sum.Votes[0].Indicator)
	}
	if sum.Score != 1 || sum.Overall != Buy {
		t.Fatalf("score %d overall %s, want 1 %s", sum.Score, sum.Overall, Buy)
	}
}

func TestOverallThresholds(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{5, StrongBuy}, {3, StrongBuy},
		{2, Buy}, {1, Buy},
		{0, Hold},
		{-1, Sell}, {-2, Sell},
		{-3, StrongSell}, {-5, StrongSell},
	}
	for _, tc := range cases {
		if got := overall(tc.score); got != tc.want {
			t.Fatalf("score %d: got %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestEvaluateFromCandles(t *testing.T) {
	g := NewGenerator(features.NewEngineer())

	n := 200
	candles := make([]*models.Candle, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100 + 10*math.Sin(float64(i)/7) + 0.05*float64(i)
		candles[i] = &models.Candle{
			Bucket:   base.AddDate(0, 0, i),
			Symbol:   "AAPL",
			Exchange: "US",
			Open:     price * 0.995,
			High:     price * 1.01,
			Low:      price * 0.99,
			Close:    price,
			Volume:   1e6,
		}
	}

	sum, err := g.Evaluate(context.Background(), candles)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(sum.Votes) == 0 {
		t.Fatalf("expected indicator votes from a full feature frame")
	}
	switch sum.Overall {
	case StrongBuy, Buy, Hold, Sell, StrongSell:
	default:
		t.Fatalf("unknown overall label %q", sum.Overall)
	}
}
