package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/pkg/config"
)

func trendCandles(n int, dailyReturn float64) []*models.Candle {
	out := make([]*models.Candle, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		out[i] = &models.Candle{
			Bucket:   base.AddDate(0, 0, i),
			Symbol:   "AAPL",
			Exchange: "US",
			Open:     price,
			High:     price * 1.005,
			Low:      price * 0.995,
			Close:    price,
			Volume:   1e6,
		}
		price *= 1 + dailyReturn
	}
	return out
}

func TestFallbackProjectsMomentum(t *testing.T) {
	fb := NewFallback(config.ForecastDefaults().Fallback)
	candles := trendCandles(10, 0.01)
	price := candles[len(candles)-1].Close

	out, err := fb.Predict(candles, price)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out.Source != models.SourceFallback {
		t.Fatalf("source: got %s", out.Source)
	}
	if len(out.Horizons) != 4 {
		t.Fatalf("horizons: got %d, want 4", len(out.Horizons))
	}

	wantMult := []float64{0.5, 2.5, 10, 25}
	wantConf := []int{65, 60, 55, 50}
	for i, h := range out.Horizons {
		want := round2(price * (1 + 0.01*wantMult[i]))
		if math.Abs(h.Target-want) > 0.02 {
			t.Fatalf("%s target: got %v, want ~%v", h.Horizon, h.Target, want)
		}
		if h.Confidence != wantConf[i] {
			t.Fatalf("%s confidence: got %d, want %d", h.Horizon, h.Confidence, wantConf[i])
		}
	}
}

func TestFallbackClampsRunawayMomentum(t *testing.T) {
	fb := NewFallback(config.ForecastDefaults().Fallback)
	candles := trendCandles(10, 0.20)
	price := candles[len(candles)-1].Close

	out, err := fb.Predict(candles, price)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	// 20% daily momentum exceeds the clamp, so every horizon flattens.
	for _, h := range out.Horizons {
		if h.Target != round2(price) {
			t.Fatalf("%s target: got %v, want flat %v", h.Horizon, h.Target, round2(price))
		}
		if h.ChangePct != 0 {
			t.Fatalf("%s change: got %v, want 0", h.Horizon, h.ChangePct)
		}
	}
}

func TestFallbackThinTape(t *testing.T) {
	fb := NewFallback(config.ForecastDefaults().Fallback)

	out, err := fb.Predict([]*models.Candle{{Close: 50}}, 50)
	if err != nil {
		t.Fatalf("single candle: %v", err)
	}
	for _, h := range out.Horizons {
		if h.Target != 50 {
			t.Fatalf("%s target: got %v, want 50", h.Horizon, h.Target)
		}
	}
}

func TestFallbackRejectsInvalidPrice(t *testing.T) {
	fb := NewFallback(config.ForecastDefaults().Fallback)
	for _, price := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		if _, err := fb.Predict(trendCandles(10, 0.01), price); !errors.Is(err, models.ErrInvalidPrice) {
			t.Fatalf("price %v: expected ErrInvalidPrice, got %v", price, err)
		}
	}
}
