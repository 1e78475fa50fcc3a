// Package memory provides an in-process persistence backend.
package memory

import (
	"context"
	"sync"

	"github.com/dukex/chatflow/pkg/persistence"
)

// Persistence keeps records in a map. It backs tests and memory:// URLs.
type Persistence struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewPersistence() *Persistence {
	return &Persistence{records: make(map[string][]byte)}
}

func (p *Persistence) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value, ok := p.records[key]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}

	return append([]byte(nil), value...), nil
}

func (p *Persistence) Put(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.records[key] = append([]byte(nil), value...)

	return nil
}

func (p *Persistence) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.records, key)

	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
