package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	applogger "StockPulse/pkg/logger"
)

// FSArtifactStore keeps one JSON artifact per instrument under a local model
// directory. Writes go to a temp file in the same directory and are renamed
// into place, so a concurrent Load always sees a complete artifact.
type FSArtifactStore struct {
	dir string
	l   *applogger.Logger
	mu  sync.RWMutex
}

func NewFSArtifactStore(dir string, l *applogger.Logger) (*FSArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &FSArtifactStore{dir: dir, l: l}, nil
}

var _ domrepo.ArtifactStore = (*FSArtifactStore)(nil)

func (s *FSArtifactStore) Save(ctx context.Context, key models.InstrumentKey, a *models.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+s.fileName(key)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("swap artifact: %w", err)
	}

	if s.l != nil {
		s.l.Info("model artifact saved",
			applogger.String("key", key.String()),
			applogger.Int("bytes", len(data)),
		)
	}
	return nil
}

func (s *FSArtifactStore) Load(ctx context.Context, key models.InstrumentKey) (*models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(s.path(key))
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrArtifactNotFound, key)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var a models.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return &a, nil
}

func (s *FSArtifactStore) Exists(ctx context.Context, key models.InstrumentKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FSArtifactStore) Delete(ctx context.Context, key models.InstrumentKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func (s *FSArtifactStore) path(key models.InstrumentKey) string {
	return filepath.Join(s.dir, s.fileName(key))
}

// fileName sanitizes the instrument key for the filesystem.
func (s *FSArtifactStore) fileName(key models.InstrumentKey) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key.String())
	return name + ".json"
}
