package usecase

import (
	"context"
	"fmt"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	xutil "StockPulse/pkg/util"
)

// CandlesUseCase provides business logic for retrieving daily bars.
type CandlesUseCase struct {
	store domrepo.CandleStore
}

func NewCandlesUseCase(store domrepo.CandleStore) *CandlesUseCase {
	return &CandlesUseCase{store: store}
}

type GetCandlesParams struct {
	Symbol   string
	Exchange string
	From     time.Time
	To       time.Time
	Limit    int
}

type GetCandlesResult struct {
	Symbol   string
	Exchange string
	From     time.Time
	To       time.Time
	Count    int
	Candles  []*models.Candle
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 500
	}
	if p.Limit > 10000 {
		p.Limit = 10000
	}

	key := models.NewInstrumentKey(p.Symbol, p.Exchange)
	from, to := xutil.AlignDayRange(p.From, p.To)
	candles, err := uc.store.GetRange(ctx, key, from, to, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}

	return &GetCandlesResult{
		Symbol:   key.Symbol,
		Exchange: key.Exchange,
		From:     p.From,
		To:       p.To,
		Count:    len(candles),
		Candles:  candles,
	}, nil
}
