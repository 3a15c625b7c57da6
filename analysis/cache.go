package analysis

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"mobilepilot/agent"
)

const defaultCacheSize = 256

// Cache remembers extractions by image content so re-runs and watch mode do
// not pay for the same screenshot twice. Safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, agent.Extraction]
}

// NewCache returns a cache holding up to size extractions; size <= 0 uses
// the default.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, agent.Extraction](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: c}, nil
}

// ImageKey is the hex SHA-256 of the image bytes.
func ImageKey(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) Get(key string) (*agent.Extraction, bool) {
	if c == nil {
		return nil, false
	}
	ex, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return &ex, true
}

func (c *Cache) Add(key string, ex *agent.Extraction) {
	if c == nil || ex == nil {
		return
	}
	c.entries.Add(key, *ex)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
