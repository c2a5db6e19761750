package llm

import "sync"

// ClientCache hands out one Client per (base URL, model, key). It replaces
// package-level client maps: the owner creates it, shares it with the
// workers and may Reset it between tests.
type ClientCache struct {
	mu      sync.Mutex
	clients map[string]*Client
	opts    []Option
}

// NewClientCache applies opts to every client it creates.
func NewClientCache(opts ...Option) *ClientCache {
	return &ClientCache{clients: make(map[string]*Client), opts: opts}
}

func (c *ClientCache) Get(cfg Config) *Client {
	key := cfg.key()

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[key]; ok {
		return client
	}
	client := NewClient(cfg, c.opts...)
	c.clients[key] = client
	return client
}

func (c *ClientCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Reset drops every cached client.
func (c *ClientCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients = make(map[string]*Client)
}
