// Package idempotency caches completed responses keyed by
// session|tool|idempotency_key so retried requests replay instead of
// re-executing. The first execution to complete under a base key pins that
// key's params hash; a retry reusing the key with different params is a
// conflict, never a silent overwrite.
package idempotency

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Outcome of a cache check.
type Outcome int

const (
	Miss Outcome = iota
	Replay
	Conflict
)

// Cache is the in-memory idempotency store. Entries live for the process
// lifetime.
type Cache struct {
	mu        sync.RWMutex
	baseHash  map[string]string // base key -> params hash of the first writer
	responses map[string]string // base key|params hash -> cached response
}

func New() *Cache {
	return &Cache{
		baseHash:  make(map[string]string),
		responses: make(map[string]string),
	}
}

// BaseKey composes the cache key shared by all retries of one logical
// request.
func BaseKey(sessionID, tool, idempotencyKey string) string {
	return fmt.Sprintf("%s|%s|%s", sessionID, tool, idempotencyKey)
}

func fullKey(baseKey, paramsHash string) string {
	return baseKey + "|" + paramsHash
}

// Check looks up baseKey with the request's params hash. A cached response
// under the full key replays; a base key pinned to a different hash
// conflicts; anything else is a miss.
func (c *Cache) Check(baseKey, paramsHash string) (Outcome, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if resp, ok := c.responses[fullKey(baseKey, paramsHash)]; ok {
		return Replay, resp
	}
	if pinned, ok := c.baseHash[baseKey]; ok && pinned != paramsHash {
		return Conflict, ""
	}
	return Miss, ""
}

// Store caches a response under the full key. The base key's pinned hash is
// written only once, so a later conflict response never steals the key from
// the original execution.
func (c *Cache) Store(baseKey, paramsHash, response string) {
	c.mu.Lock()
	c.responses[fullKey(baseKey, paramsHash)] = response
	if _, ok := c.baseHash[baseKey]; !ok {
		c.baseHash[baseKey] = paramsHash
	}
	c.mu.Unlock()
}

// Len reports the number of cached responses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.responses)
}

// InjectReplayFlag rewrites a cached response so the caller can tell it came
// from the cache. If the cached payload is somehow unparseable it is
// returned untouched.
func InjectReplayFlag(response string) string {
	var body map[string]any
	if err := json.Unmarshal([]byte(response), &body); err != nil {
		log.Warn().Err(err).Msg("cached idempotent response is not valid JSON")
		return response
	}
	body["idempotent_replay"] = true
	out, err := json.Marshal(body)
	if err != nil {
		return response
	}
	return string(out)
}
