package features

import (
	"math"

	"github.com/markcheno/go-talib"
)

// go-talib fills the unstable lookback period with zeros instead of NaN.
// Everything here masks that prefix so the engineer can drop warmup rows the
// same way for every indicator.

func masked(vals []float64, lookback int) []float64 {
	out := append([]float64(nil), vals...)
	if lookback > len(out) {
		lookback = len(out)
	}
	for i := 0; i < lookback; i++ {
		out[i] = math.NaN()
	}
	return out
}

func sma(in []float64, period int) []float64 {
	return masked(talib.Sma(in, period), period-1)
}

func ema(in []float64, period int) []float64 {
	return masked(talib.Ema(in, period), period-1)
}

func stdDev(in []float64, period int) []float64 {
	return masked(talib.StdDev(in, period, 1.0), period-1)
}

func macd(close []float64) (line, signal, diff []float64) {
	m, s, h := talib.Macd(close, 12, 26, 9)
	const lb = 26 + 9 - 2
	return masked(m, lb), masked(s, lb), masked(h, lb)
}

func rsi(close []float64, period int) []float64 {
	return masked(talib.Rsi(close, period), period)
}

func stoch(high, low, close []float64) (k, d []float64) {
	sk, sd := talib.Stoch(high, low, close, 14, 3, talib.SMA, 3, talib.SMA)
	const lb = 14 + 3 + 3 - 3
	return masked(sk, lb), masked(sd, lb)
}

func willR(high, low, close []float64, period int) []float64 {
	return masked(talib.WillR(high, low, close, period), period-1)
}

func roc(close []float64, period int) []float64 {
	return masked(talib.Roc(close, period), period)
}

func atr(high, low, close []float64, period int) []float64 {
	return masked(talib.Atr(high, low, close, period), period)
}

func bbands(close []float64, period int) (upper, mid, lower []float64) {
	u, m, l := talib.BBands(close, period, 2.0, 2.0, talib.SMA)
	return masked(u, period-1), masked(m, period-1), masked(l, period-1)
}

func obv(close, volume []float64) []float64 {
	return talib.Obv(close, volume)
}

func mfi(high, low, close, volume []float64, period int) []float64 {
	return masked(talib.Mfi(high, low, close, volume, period), period)
}

func adx(high, low, close []float64, period int) []float64 {
	return masked(talib.Adx(high, low, close, period), 2*period-1)
}

func plusDI(high, low, close []float64, period int) []float64 {
	return masked(talib.PlusDI(high, low, close, period), period)
}

func minusDI(high, low, close []float64, period int) []float64 {
	return masked(talib.MinusDI(high, low, close, period), period)
}

func cci(high, low, close []float64, period int) []float64 {
	return masked(talib.Cci(high, low, close, period), period-1)
}

func rollMax(in []float64, period int) []float64 {
	return masked(talib.Max(in, period), period-1)
}

func rollMin(in []float64, period int) []float64 {
	return masked(talib.Min(in, period), period-1)
}

// --- hand-derived series ---

// pctChange is the one-step relative change with a NaN head.
func pctChange(in []float64) []float64 {
	out := make([]float64, len(in))
	if len(out) > 0 {
		out[0] = math.NaN()
	}
	for i := 1; i < len(in); i++ {
		if in[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = in[i]/in[i-1] - 1
	}
	return out
}

func logReturns(in []float64) []float64 {
	out := make([]float64, len(in))
	if len(out) > 0 {
		out[0] = math.NaN()
	}
	for i := 1; i < len(in); i++ {
		if in[i-1] <= 0 || in[i] <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log(in[i] / in[i-1])
	}
	return out
}

// shift lags a series by k rows, filling the head with NaN.
func shift(in []float64, k int) []float64 {
	out := make([]float64, len(in))
	for i := range out {
		if i < k {
			out[i] = math.NaN()
			continue
		}
		out[i] = in[i-k]
	}
	return out
}

// momentum is the k-step relative change.
func momentum(close []float64, k int) []float64 {
	out := make([]float64, len(close))
	for i := range out {
		if i < k || close[i-k] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = close[i]/close[i-k] - 1
	}
	return out
}

// cmf is the Chaikin money flow over the given window.
func cmf(high, low, close, volume []float64, period int) []float64 {
	n := len(close)
	mfv := make([]float64, n)
	for i := 0; i < n; i++ {
		rng := high[i] - low[i]
		if rng == 0 {
			mfv[i] = 0
			continue
		}
		mult := ((close[i] - low[i]) - (high[i] - close[i])) / rng
		mfv[i] = mult * volume[i]
	}
	out := make([]float64, n)
	var sumMFV, sumVol float64
	for i := 0; i < n; i++ {
		sumMFV += mfv[i]
		sumVol += volume[i]
		if i >= period {
			sumMFV -= mfv[i-period]
			sumVol -= volume[i-period]
		}
		if i < period-1 || sumVol == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sumMFV / sumVol
	}
	return out
}

// ratio divides two series element-wise, NaN on zero denominators.
func ratio(num, den []float64) []float64 {
	out := make([]float64, len(num))
	for i := range out {
		if den[i] == 0 || !isFinite(den[i]) || !isFinite(num[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = num[i] / den[i]
	}
	return out
}
