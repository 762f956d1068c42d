package llm

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcampbell/loom/internal/config"
)

// Cache hands out clients keyed by model config, rebuilding them after a
// refresh interval so rotated API keys get picked up from the environment.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	client  *OpenAICompatClient
	created time.Time
}

// NewCache creates a client cache with the given entry lifetime.
// A non-positive ttl disables expiry.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// CacheFromConfig builds a cache using the config's token_refresh_interval.
func CacheFromConfig(cfg *config.Config) *Cache {
	return NewCache(time.Duration(cfg.TokenRefreshInterval) * time.Second)
}

// ForModel returns a cached client for the model index, building one on the
// first request and after expiry.
func (c *Cache) ForModel(cfg *config.Config, id string) (*OpenAICompatClient, error) {
	mc, err := cfg.Model(id)
	if err != nil {
		return nil, err
	}

	key := cacheKey(mc)

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		if c.ttl <= 0 || time.Since(ent.created) < c.ttl {
			return ent.client, nil
		}
		delete(c.entries, key)
	}

	client, err := buildClient(mc)
	if err != nil {
		return nil, err
	}
	c.entries[key] = cacheEntry{client: client, created: time.Now()}
	return client, nil
}

// cacheKey derives a stable UUID from the fields that identify a client.
func cacheKey(mc config.ModelConfig) string {
	seed := mc.Provider + "|" + mc.ModelName + "|" + mc.APIBase + "|" + mc.KeyEnv()
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}
