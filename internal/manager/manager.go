package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/memsample"
	"chatd/internal/registry"
	"chatd/internal/store"
	"chatd/pkg/types"
)

type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	registry     []types.Model
	defaultModel string

	// Context accounting config
	tokenBudget     int
	protectedTail   int
	preferSummarize bool

	// Monitoring config
	warnThreshold    uint64
	cleanupThreshold uint64
	sampleInterval   time.Duration

	// Lifecycle config
	terminateTimeout time.Duration
	blockOnBusy      bool
	keepPartial      bool

	adapter   BackendAdapter
	sampler   memsample.Sampler
	storage   *store.Store
	publisher EventPublisher
	log       zerolog.Logger

	startTime     time.Time
	cleanupsTotal atomic.Uint64
	sessionsTotal atomic.Uint64

	// Tracks alert pump goroutines for shutdown.
	wg sync.WaitGroup
}

// New constructs a Manager with package defaults for everything but the
// registry and default model.
func New(reg []types.Model, defaultModel string) *Manager {
	return NewWithConfig(Config{
		Registry:     reg,
		DefaultModel: defaultModel,
	})
}

// Ready reports whether the server can serve sessions. Sessions are created
// on demand, so readiness only requires a non-empty model registry.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.registry) > 0
}

func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// resolveModel maps an id (or "" for the configured default) to a registry
// entry.
func (m *Manager) resolveModel(id string) (types.Model, error) {
	if id == "" {
		id = m.defaultModel
	}
	mdl, ok := registry.Resolve(m.registry, id)
	if !ok {
		return types.Model{}, errModelNotFound{id: id}
	}
	return mdl, nil
}

// session looks up a live session by id under the read lock.
func (m *Manager) session(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errSessionNotFound{id: id}
	}
	return s, nil
}
