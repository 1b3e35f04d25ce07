package session

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"fable/internal/logging"
)

// Backend selects the Store implementation a Manager hands out.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// ManagerConfig configures store construction.
type ManagerConfig struct {
	Backend   Backend
	HumanCap  int
	CacheSize int
	// Redis is required for BackendRedis.
	Redis redis.UniversalClient
}

// Manager hands out the Store for a session id, constructing backends
// lazily. Live stores are kept in a bounded LRU; evicting a memory-backed
// store discards its conversation, evicting a Redis-backed one only drops
// the cheap handle.
type Manager struct {
	config ManagerConfig
	logger logging.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, Store]
}

// NewManager creates a session manager.
func NewManager(config ManagerConfig) (*Manager, error) {
	switch config.Backend {
	case BackendMemory, BackendRedis:
	case "":
		config.Backend = BackendMemory
	default:
		return nil, fmt.Errorf("unknown session backend %q", config.Backend)
	}
	if config.Backend == BackendRedis && config.Redis == nil {
		return nil, fmt.Errorf("redis backend requires a client")
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 512
	}
	cache, err := lru.New[string, Store](config.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Manager{
		config: config,
		logger: logging.NewComponentLogger("session-manager"),
		cache:  cache,
	}, nil
}

// Get returns the Store for sessionID, creating it on first use.
func (m *Manager) Get(sessionID string) Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.cache.Get(sessionID); ok {
		return store
	}

	var store Store
	switch m.config.Backend {
	case BackendRedis:
		store = NewRedisStore(sessionID, m.config.Redis, m.config.HumanCap)
	default:
		store = NewMemoryStore(sessionID, m.config.HumanCap)
	}

	if evicted := m.cache.Add(sessionID, store); evicted {
		m.logger.Debug("session cache full, evicted least recently used entry")
	}
	return store
}

// Backend reports which store implementation the manager constructs.
func (m *Manager) Backend() Backend {
	if m.config.Backend == BackendRedis {
		return BackendRedis
	}
	return BackendMemory
}
