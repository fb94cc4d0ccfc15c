package repository

import (
	"context"
	"time"

	"StockPulse/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Candle, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Publisher interface {
	Publish(ctx context.Context, c *models.Candle) error
	PublishBatch(ctx context.Context, candles []*models.Candle) error
	Close() error
}

type CandleStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, c *models.Candle) error
	StoreBatch(ctx context.Context, candles []*models.Candle) error
	GetLatestN(ctx context.Context, key models.InstrumentKey, n int) ([]*models.Candle, error)
	GetRange(ctx context.Context, key models.InstrumentKey, from, to time.Time, limit int) ([]*models.Candle, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// ArtifactStore persists trained model artifacts. Save must replace
// atomically: a concurrent Load sees either the old or the new artifact.
type ArtifactStore interface {
	Save(ctx context.Context, key models.InstrumentKey, a *models.Artifact) error
	Load(ctx context.Context, key models.InstrumentKey) (*models.Artifact, error)
	Exists(ctx context.Context, key models.InstrumentKey) (bool, error)
	Delete(ctx context.Context, key models.InstrumentKey) error
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
