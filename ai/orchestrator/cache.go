package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/hrygo/civicsense/ai/agents"
	"github.com/hrygo/civicsense/ai/cache"
	"github.com/hrygo/civicsense/ai/classifier"
)

const responseCacheCapacity = 4096

// cachedResponse is stored post-validation. The intent it was validated
// under travels with it so a classification mismatch forces a fresh
// validation pass.
type cachedResponse struct {
	response *agents.Response
	intent   classifier.Intent
}

// responseCache short-circuits delegation for cache-eligible agents.
type responseCache struct {
	lru *cache.LRUCache[string, cachedResponse]
	ttl time.Duration
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &responseCache{
		lru: cache.NewLRUCache[string, cachedResponse](responseCacheCapacity, ttl),
		ttl: ttl,
	}
}

func (c *responseCache) get(text, language string) (cachedResponse, bool) {
	return c.lru.Get(cacheKey(text, language))
}

func (c *responseCache) put(text string, intent classifier.Intent, language string, resp *agents.Response) {
	c.lru.Set(cacheKey(text, language), cachedResponse{response: resp, intent: intent}, c.ttl)
}

// cacheKey hashes normalized text and language. Hashing keeps
// arbitrary-length citizen text out of the key space. Intent is
// deliberately not part of the key: the same text may classify
// differently across turns, and such hits are re-validated under the
// current intent instead of missing.
func cacheKey(text, language string) string {
	sum := sha256.Sum256([]byte(normalizeCacheText(text) + "|" + strings.ToLower(language)))
	return hex.EncodeToString(sum[:])
}

func normalizeCacheText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
