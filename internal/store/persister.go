package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"support360/internal/config"

	"github.com/sirupsen/logrus"
)

// Persister stores opaque snapshot blobs under slot keys.
type Persister interface {
	// Load returns ok=false when the slot has never been written.
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// MemoryPersister keeps slots in process memory.
type MemoryPersister struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{slots: make(map[string][]byte)}
}

func (p *MemoryPersister) Load(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.slots[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (p *MemoryPersister) Save(_ context.Context, key string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	p.mu.Lock()
	p.slots[key] = buf
	p.mu.Unlock()
	return nil
}

func (p *MemoryPersister) Close() error { return nil }

// Keys lists the slots written so far.
func (p *MemoryPersister) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.slots))
	for k := range p.slots {
		keys = append(keys, k)
	}
	return keys
}

// OpenPersister builds the persister selected by cfg.Storage.Driver.
func OpenPersister(cfg *config.Config, logger *logrus.Logger) (Persister, error) {
	if logger == nil {
		logger = logrus.New()
	}
	driver := strings.ToLower(cfg.Storage.Driver)
	logger.Infof("Opening %s snapshot storage", driver)

	switch driver {
	case "", "memory":
		return NewMemoryPersister(), nil
	case "file":
		return NewFilePersister(cfg.Storage.Dir)
	case "sqlite", "postgres":
		db, err := OpenDatabase(cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewGormPersister(db)
	case "redis":
		return NewRedisPersister(cfg.Redis, cfg.Storage.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
