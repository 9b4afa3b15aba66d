// Package tools registers the bridge's built-in tool handlers: object
// inspection and patching, world queries, asset lifecycle, project settings,
// job control, and change-set access.
package tools

import (
	"fmt"
	"sync"
	"time"

	"github.com/forgebridge/forgebridge/internal/changeset"
	"github.com/forgebridge/forgebridge/internal/events"
	"github.com/forgebridge/forgebridge/internal/host"
	"github.com/forgebridge/forgebridge/internal/jobs"
	"github.com/forgebridge/forgebridge/internal/lock"
	"github.com/forgebridge/forgebridge/internal/observability"
	"github.com/forgebridge/forgebridge/internal/patch"
	"github.com/forgebridge/forgebridge/internal/registry"
)

// Deps carries every collaborator the handlers close over.
type Deps struct {
	Host       *host.Host
	Patch      *patch.Engine
	Registry   *registry.Registry
	Jobs       *jobs.Tracker
	ChangeSets changeset.Store
	Stream     *events.Stream
	Locks      *lock.Manager
	Metrics    *observability.Metrics
	Version    string

	confirmations *confirmations
}

// RegisterBuiltins wires all built-in tools into the registry.
func RegisterBuiltins(d Deps) error {
	d.confirmations = newConfirmations()

	register := []func(Deps) error{
		registerCoreTools,
		registerObjectTools,
		registerWorldTools,
		registerJobTools,
		registerChangeSetTools,
		registerAssetTools,
		registerSettingsTools,
	}
	for _, fn := range register {
		if err := fn(d); err != nil {
			return fmt.Errorf("tools: %w", err)
		}
	}
	return nil
}

// ── param helpers ───────────────────────────────────────────

func paramString(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func paramBool(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

func paramInt(params map[string]any, key string, fallback int) int {
	if v, ok := params[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func paramObject(params map[string]any, key string) map[string]any {
	v, _ := params[key].(map[string]any)
	return v
}

func paramArray(params map[string]any, key string) ([]any, bool) {
	v, ok := params[key].([]any)
	return v, ok
}

// ── confirmation tokens ─────────────────────────────────────

// confirmations tracks single-use tokens for destructive two-phase tools.
type confirmations struct {
	mu      sync.Mutex
	pending map[string]pendingConfirmation
	now     func() time.Time
}

type pendingConfirmation struct {
	signature string
	expiresAt time.Time
}

const confirmationTTL = 5 * time.Minute

func newConfirmations() *confirmations {
	return &confirmations{pending: make(map[string]pendingConfirmation), now: time.Now}
}

// issue mints a token bound to an operation signature.
func (c *confirmations) issue(token, signature string) time.Time {
	expires := c.now().Add(confirmationTTL)
	c.mu.Lock()
	c.pending[token] = pendingConfirmation{signature: signature, expiresAt: expires}
	c.mu.Unlock()
	return expires
}

// consume validates and burns a token. It fails on unknown, expired, or
// signature-mismatched tokens.
func (c *confirmations) consume(token, signature string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.pending[token]
	if !ok {
		return false
	}
	delete(c.pending, token)
	return pc.signature == signature && c.now().Before(pc.expiresAt)
}
