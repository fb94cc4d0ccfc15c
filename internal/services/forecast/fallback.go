package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"StockPulse/internal/domain/models"
	"StockPulse/pkg/config"
)

// Fallback is the momentum heuristic that answers whenever no trained model
// can: it projects the mean of the recent daily returns across each horizon
// with fixed confidences.
type Fallback struct {
	cfg config.FallbackConfig
}

func NewFallback(cfg config.FallbackConfig) *Fallback {
	return &Fallback{cfg: cfg}
}

// momentumWindow is how many trailing daily returns feed the heuristic.
const momentumWindow = 5

// Predict derives all four horizons from recent momentum. It never fails on
// thin or odd data; only an invalid current price is an error.
func (f *Fallback) Predict(candles []*models.Candle, currentPrice float64) (*models.MultiHorizonForecast, error) {
	if err := ValidatePrice(currentPrice); err != nil {
		return nil, err
	}

	m := f.momentum(candles)

	mult := f.cfg.Multipliers
	conf := f.cfg.Confidences
	return &models.MultiHorizonForecast{
		CurrentPrice: round2(currentPrice),
		Source:       models.SourceFallback,
		Horizons: []models.HorizonForecast{
			horizonForecast(models.HorizonIntraday, currentPrice*(1+m*mult.Intraday), currentPrice, conf.Intraday),
			horizonForecast(models.HorizonWeekly, currentPrice*(1+m*mult.Weekly), currentPrice, conf.Weekly),
			horizonForecast(models.HorizonMonthly, currentPrice*(1+m*mult.Monthly), currentPrice, conf.Monthly),
			horizonForecast(models.HorizonLongTerm, currentPrice*(1+m*mult.LongTerm), currentPrice, conf.LongTerm),
		},
	}, nil
}

// momentum averages the last daily returns; a non-finite or outsized result
// collapses to zero so a bad tape can never launch the projection.
func (f *Fallback) momentum(candles []*models.Candle) float64 {
	returns := make([]float64, 0, momentumWindow)
	for i := len(candles) - 1; i > 0 && len(returns) < momentumWindow; i-- {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		r := candles[i].Close/prev - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		returns = append(returns, r)
	}
	if len(returns) == 0 {
		return 0
	}
	m := stat.Mean(returns, nil)
	if math.IsNaN(m) || math.IsInf(m, 0) || math.Abs(m) > f.cfg.MomentumClamp {
		return 0
	}
	return m
}
