package signals

import (
	"context"
	"math"

	"StockPulse/internal/domain/models"
	domservice "StockPulse/internal/domain/service"
	"StockPulse/internal/services/features"
)

// Recommendation labels.
const (
	StrongBuy  = "STRONG BUY"
	Buy        = "BUY"
	Hold       = "HOLD"
	Sell       = "SELL"
	StrongSell = "STRONG SELL"
)

// Generator derives a rule-based technical recommendation from indicator
// votes: RSI extremes, MACD histogram direction, trend vs SMA 50 and
// Bollinger band position.
type Generator struct {
	engineer *features.Engineer
}

func NewGenerator(engineer *features.Engineer) *Generator {
	return &Generator{engineer: engineer}
}

var _ domservice.SignalEvaluator = (*Generator)(nil)

func (g *Generator) Evaluate(ctx context.Context, candles []*models.Candle) (*models.SignalSummary, error) {
	frame, err := g.engineer.CreateFeatures(candles)
	if err != nil {
		return nil, err
	}
	return g.EvaluateFrame(frame), nil
}

// EvaluateFrame votes on the last row of an already engineered frame.
func (g *Generator) EvaluateFrame(frame *features.Frame) *models.SignalSummary {
	summary := &models.SignalSummary{}

	if rsi, ok := lastFinite(frame, "rsi_14"); ok {
		vote := models.TechnicalSignal{Indicator: "rsi", Value: rsi, Signal: Hold}
		switch {
		case rsi < 30:
			vote.Signal, vote.Score = StrongBuy, 2
		case rsi > 70:
			vote.Signal, vote.Score = Sell, -2
		}
		summary.Votes = append(summary.Votes, vote)
	}

	if diff, ok := lastFinite(frame, "macd_diff"); ok {
		vote := models.TechnicalSignal{Indicator: "macd", Value: diff}
		if diff > 0 {
			vote.Signal, vote.Score = Buy, 1
		} else {
			vote.Signal, vote.Score = Sell, -1
		}
		summary.Votes = append(summary.Votes, vote)
	}

	closeP, okClose := lastFinite(frame, "close")
	if sma50, ok := lastFinite(frame, "sma_50"); ok && okClose {
		vote := models.TechnicalSignal{Indicator: "trend", Value: closeP / sma50}
		if closeP > sma50 {
			vote.Signal, vote.Score = Buy, 1
		} else {
			vote.Signal, vote.Score = Sell, -1
		}
		summary.Votes = append(summary.Votes, vote)
	}

	if pos, ok := lastFinite(frame, "bb_position"); ok {
		vote := models.TechnicalSignal{Indicator: "bollinger", Value: pos, Signal: Hold}
		switch {
		case pos < 0.05:
			vote.Signal, vote.Score = Buy, 1
		case pos > 0.95:
			vote.Signal, vote.Score = Sell, -1
		}
		summary.Votes = append(summary.Votes, vote)
	}

	for _, v := range summary.Votes {
		summary.Score += v.Score
	}
	summary.Overall = overall(summary.Score)
	return summary
}

func overall(score int) string {
	switch {
	case score >= 3:
		return StrongBuy
	case score >= 1:
		return Buy
	case score <= -3:
		return StrongSell
	case score <= -1:
		return Sell
	default:
		return Hold
	}
}

func lastFinite(frame *features.Frame, name string) (float64, bool) {
	v, ok := frame.Last(name)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
