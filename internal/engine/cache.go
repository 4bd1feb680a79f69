package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// DefaultCacheSize bounds the number of distinct connections kept.
const DefaultCacheSize = 64

// ClientCache reuses ChatClients across requests with the same connection
// settings. Configurations are still resolved on every call; only the HTTP
// client is shared.
type ClientCache struct {
	clients *lru.Cache[string, *ChatClient]
	timeout time.Duration
}

// NewClientCache creates a cache holding up to size clients.
func NewClientCache(size int, timeout time.Duration) (*ClientCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	clients, err := lru.New[string, *ChatClient](size)
	if err != nil {
		return nil, err
	}
	return &ClientCache{clients: clients, timeout: timeout}, nil
}

// Get returns the client for cfg, creating it on first use.
func (c *ClientCache) Get(cfg model.EffectiveLLMConfig) *ChatClient {
	key := cacheKey(cfg)
	if cl, ok := c.clients.Get(key); ok {
		return cl
	}
	var opts []ClientOption
	if c.timeout > 0 {
		opts = append(opts, WithTimeout(c.timeout))
	}
	cl := NewChatClient(cfg, opts...)
	c.clients.Add(key, cl)
	return cl
}

// Len returns the number of cached clients.
func (c *ClientCache) Len() int {
	return c.clients.Len()
}

// cacheKey hashes every field the client captures so the key never holds the raw API key.
func cacheKey(cfg model.EffectiveLLMConfig) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%g\x00%d\x00%s",
		cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.SystemPrompt)
	return hex.EncodeToString(h.Sum(nil))
}
