package cache

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/skimmer/models"
)

// entry holds a cached document with its timestamps.
type entry struct {
	doc       *models.Document
	createdAt time.Time
	expiresAt time.Time
}

// Memory is a bounded in-memory Store. Safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	done       chan struct{}
}

// NewMemory creates a Memory store with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict expired entries.
// Call Stop when done.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	m := &Memory{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		done:       make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *Memory) Get(_ context.Context, key string, maxAge time.Duration) (*models.Document, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	m.mu.RLock()
	e, ok := m.store[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	now := time.Now()
	if now.After(e.expiresAt) || now.Sub(e.createdAt) > maxAge {
		return nil, false
	}
	return e.doc, true
}

func (m *Memory) Set(_ context.Context, key string, doc *models.Document, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := m.store[key]; !exists && len(m.store) >= m.maxEntries {
		for k := range m.store {
			delete(m.store, k)
			break
		}
	}

	m.store[key] = &entry{
		doc:       doc,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// Stop terminates the cleanup goroutine.
func (m *Memory) Stop() {
	close(m.done)
}

// cleanupLoop evicts expired entries every 5 minutes.
func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for k, e := range m.store {
				if now.After(e.expiresAt) {
					delete(m.store, k)
				}
			}
			m.mu.Unlock()
		}
	}
}
