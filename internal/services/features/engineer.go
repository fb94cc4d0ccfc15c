package features

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"StockPulse/internal/domain/models"
)

const (
	// MinRawRows is the minimum candle count accepted for derivation.
	MinRawRows = 50
	// MinCleanRows is the minimum candle count surviving cleanup.
	MinCleanRows = 30
)

var lagSteps = []int{1, 2, 3, 5, 10}
var rollWindows = []int{5, 10, 20, 50}

// selectedFeatures is the fixed model input set, in training order.
var selectedFeatures = []string{
	"close", "volume", "returns",
	"sma_20", "sma_50", "ema_12", "ema_26", "macd", "macd_signal",
	"rsi_14", "atr_14", "bb_position", "bb_width", "stoch_k", "williams_r",
	"volume_ratio", "obv", "mfi_14", "adx_14", "cci_20",
	"volatility_20", "momentum_10",
	"close_mean_20", "close_std_20", "return_mean_10", "return_std_10",
	"high_low_ratio", "price_position",
}

// Engineer derives the technical feature set used for model training and
// inference from raw daily candles.
type Engineer struct{}

func NewEngineer() *Engineer { return &Engineer{} }

// SelectFeatures returns the model input columns present in the frame, in
// canonical order. Columns the derivation could not produce are skipped.
func (e *Engineer) SelectFeatures(f *Frame) []string {
	out := make([]string, 0, len(selectedFeatures))
	for _, name := range selectedFeatures {
		if f.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// SelectedFeatureNames returns the full canonical model input list.
func (e *Engineer) SelectedFeatureNames() []string {
	return append([]string(nil), selectedFeatures...)
}

// CreateFeatures cleans the candle series and derives every feature column.
// Rows where any selected feature is not finite (indicator warmup) are
// dropped, so the returned frame is directly usable for scaling.
func (e *Engineer) CreateFeatures(candles []*models.Candle) (*Frame, error) {
	if len(candles) < MinRawRows {
		return nil, fmt.Errorf("%w: %d candles, need at least %d", models.ErrInsufficientData, len(candles), MinRawRows)
	}

	dates := make([]time.Time, len(candles))
	open := make([]float64, len(candles))
	high := make([]float64, len(candles))
	low := make([]float64, len(candles))
	closeP := make([]float64, len(candles))
	volume := make([]float64, len(candles))
	for i, c := range candles {
		dates[i] = c.Bucket
		open[i] = c.Open
		high[i] = c.High
		low[i] = c.Low
		closeP[i] = c.Close
		volume[i] = c.Volume
	}

	dates, open, high, low, closeP, volume = cleanup(dates, open, high, low, closeP, volume)
	if len(dates) < MinCleanRows {
		return nil, fmt.Errorf("%w: %d rows after cleanup, need at least %d", models.ErrInsufficientData, len(dates), MinCleanRows)
	}

	f := NewFrame(dates)
	mustAdd(f, "open", open)
	mustAdd(f, "high", high)
	mustAdd(f, "low", low)
	mustAdd(f, "close", closeP)
	mustAdd(f, "volume", volume)

	returns := pctChange(closeP)
	mustAdd(f, "returns", returns)
	mustAdd(f, "log_returns", logReturns(closeP))

	// Moving-window math cannot recover from a NaN entering its running
	// sums, so window inputs get a zeroed head and an extended mask instead.
	retClean := append([]float64(nil), returns...)
	if len(retClean) > 0 {
		retClean[0] = 0
	}

	for _, k := range lagSteps {
		mustAdd(f, fmt.Sprintf("close_lag_%d", k), shift(closeP, k))
		mustAdd(f, fmt.Sprintf("volume_lag_%d", k), shift(volume, k))
		mustAdd(f, fmt.Sprintf("return_lag_%d", k), shift(returns, k))
	}

	for _, w := range rollWindows {
		mustAdd(f, fmt.Sprintf("close_mean_%d", w), sma(closeP, w))
		mustAdd(f, fmt.Sprintf("close_std_%d", w), stdDev(closeP, w))
		mustAdd(f, fmt.Sprintf("return_mean_%d", w), masked(sma(retClean, w), w))
		mustAdd(f, fmt.Sprintf("return_std_%d", w), masked(stdDev(retClean, w), w))
	}

	mustAdd(f, "sma_20", sma(closeP, 20))
	mustAdd(f, "sma_50", sma(closeP, 50))
	mustAdd(f, "sma_200", sma(closeP, 200))
	mustAdd(f, "ema_12", ema(closeP, 12))
	mustAdd(f, "ema_26", ema(closeP, 26))
	macdLine, macdSignal, macdDiff := macd(closeP)
	mustAdd(f, "macd", macdLine)
	mustAdd(f, "macd_signal", macdSignal)
	mustAdd(f, "macd_diff", macdDiff)

	mustAdd(f, "rsi_14", rsi(closeP, 14))
	mustAdd(f, "rsi_21", rsi(closeP, 21))
	stochK, stochD := stoch(high, low, closeP)
	mustAdd(f, "stoch_k", stochK)
	mustAdd(f, "stoch_d", stochD)
	mustAdd(f, "williams_r", willR(high, low, closeP, 14))
	mustAdd(f, "roc", roc(closeP, 12))

	atr14 := atr(high, low, closeP, 14)
	mustAdd(f, "atr_14", atr14)
	bbUpper, bbMid, bbLower := bbands(closeP, 20)
	mustAdd(f, "bb_upper", bbUpper)
	mustAdd(f, "bb_mid", bbMid)
	mustAdd(f, "bb_lower", bbLower)
	bbWidth := sub(bbUpper, bbLower)
	mustAdd(f, "bb_width", bbWidth)
	mustAdd(f, "bb_position", ratio(sub(closeP, bbLower), bbWidth))
	keltnerMid := ema(closeP, 20)
	atr10 := atr(high, low, closeP, 10)
	mustAdd(f, "keltner_upper", addScaled(keltnerMid, atr10, 2))
	mustAdd(f, "keltner_lower", addScaled(keltnerMid, atr10, -2))

	mustAdd(f, "volume_ratio", ratio(volume, sma(volume, 20)))
	mustAdd(f, "obv", obv(closeP, volume))
	mustAdd(f, "cmf", cmf(high, low, closeP, volume, 20))
	mustAdd(f, "mfi_14", mfi(high, low, closeP, volume, 14))

	mustAdd(f, "adx_14", adx(high, low, closeP, 14))
	mustAdd(f, "di_plus", plusDI(high, low, closeP, 14))
	mustAdd(f, "di_minus", minusDI(high, low, closeP, 14))
	mustAdd(f, "cci_20", cci(high, low, closeP, 20))

	mustAdd(f, "high_low_ratio", ratio(high, low))
	mustAdd(f, "close_open_ratio", ratio(closeP, open))
	mustAdd(f, "intraday_change", ratio(sub(closeP, open), open))

	for _, w := range []int{5, 20, 50} {
		mustAdd(f, fmt.Sprintf("volatility_%d", w), masked(stdDev(retClean, w), w))
	}
	for _, k := range []int{5, 10, 20} {
		mustAdd(f, fmt.Sprintf("momentum_%d", k), momentum(closeP, k))
	}

	resistance := rollMax(high, 20)
	support := rollMin(low, 20)
	mustAdd(f, "resistance_20", resistance)
	mustAdd(f, "support_20", support)
	mustAdd(f, "price_position", pricePosition(closeP, support, resistance))

	dow := make([]float64, len(dates))
	month := make([]float64, len(dates))
	quarter := make([]float64, len(dates))
	for i, d := range dates {
		dow[i] = float64(d.Weekday())
		month[i] = float64(d.Month())
		quarter[i] = float64((int(d.Month())-1)/3 + 1)
	}
	mustAdd(f, "day_of_week", dow)
	mustAdd(f, "month", month)
	mustAdd(f, "quarter", quarter)

	return f.DropUnstable(e.SelectFeatures(f)), nil
}

// cleanup repairs missing OHLCV values: forward-fill, back-fill, then the
// finite column mean; rows still invalid afterwards are dropped.
func cleanup(dates []time.Time, cols ...[]float64) (outDates []time.Time, open, high, low, closeP, volume []float64) {
	for ci, col := range cols {
		// volume may legitimately be zero; prices may not
		priceCol := ci < 4
		for i, v := range col {
			if !validValue(v, priceCol) {
				col[i] = math.NaN()
			}
		}
		fillForward(col)
		fillBackward(col)
		fillMean(col)
	}

	keep := make([]bool, len(dates))
	n := 0
	for i := range dates {
		ok := true
		for ci, col := range cols {
			if !validValue(col[i], ci < 4) {
				ok = false
				break
			}
		}
		keep[i] = ok
		if ok {
			n++
		}
	}

	outDates = make([]time.Time, 0, n)
	out := make([][]float64, len(cols))
	for ci := range cols {
		out[ci] = make([]float64, 0, n)
	}
	for i, k := range keep {
		if !k {
			continue
		}
		outDates = append(outDates, dates[i])
		for ci := range cols {
			out[ci] = append(out[ci], cols[ci][i])
		}
	}
	return outDates, out[0], out[1], out[2], out[3], out[4]
}

func validValue(v float64, price bool) bool {
	if !isFinite(v) {
		return false
	}
	if price {
		return v > 0
	}
	return v >= 0
}

func fillForward(col []float64) {
	last := math.NaN()
	for i, v := range col {
		if isFinite(v) {
			last = v
		} else if isFinite(last) {
			col[i] = last
		}
	}
}

func fillBackward(col []float64) {
	next := math.NaN()
	for i := len(col) - 1; i >= 0; i-- {
		if isFinite(col[i]) {
			next = col[i]
		} else if isFinite(next) {
			col[i] = next
		}
	}
}

func fillMean(col []float64) {
	finite := make([]float64, 0, len(col))
	for _, v := range col {
		if isFinite(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return
	}
	mean := stat.Mean(finite, nil)
	for i, v := range col {
		if !isFinite(v) {
			col[i] = mean
		}
	}
}

func mustAdd(f *Frame, name string, vals []float64) {
	if err := f.Add(name, vals); err != nil {
		// all columns are built from the same candle slice
		panic(err)
	}
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range out {
		out[i] = a[i] - b[i]
	}
	return out
}

func addScaled(a, b []float64, k float64) []float64 {
	out := make([]float64, len(a))
	for i := range out {
		out[i] = a[i] + k*b[i]
	}
	return out
}

// pricePosition locates close inside the recent support/resistance band;
// a degenerate band maps to the midpoint.
func pricePosition(closeP, support, resistance []float64) []float64 {
	out := make([]float64, len(closeP))
	for i := range out {
		rng := resistance[i] - support[i]
		if !isFinite(rng) {
			out[i] = math.NaN()
			continue
		}
		if rng == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = (closeP[i] - support[i]) / rng
	}
	return out
}
