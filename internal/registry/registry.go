// Package registry owns the tool table: definitions, request validation
// against per-tool params schemas, the schema hash clients cache tools.list
// against, and the execution wrapper that turns handler panics into
// diagnostics instead of dead requests.
package registry

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/forgebridge/forgebridge/internal/protocol"
)

// Handler executes one tool call. Handlers report failures through the
// result's diagnostics, never by panicking; the wrapper catches panics as a
// last resort.
type Handler func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult)

// Definition describes a registered tool.
type Definition struct {
	Name    string
	Domain  string
	Version string
	Enabled bool
	Write   bool

	// LockKeyParam optionally names the param holding the lock key,
	// overriding the router's fallback resolution chain.
	LockKeyParam string

	ParamsSchema map[string]any
	ResultSchema map[string]any
	Handler      Handler
}

// Registry is the tool table.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
}

func New() *Registry {
	return &Registry{tools: make(map[string]*Definition)}
}

// Register adds a tool. Re-registering a name replaces the previous entry.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("registry: tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("registry: tool %q has no handler", def.Name)
	}
	r.mu.Lock()
	r.tools[def.Name] = &def
	r.mu.Unlock()
	log.Debug().Str("tool", def.Name).Bool("write", def.Write).Msg("tool registered")
	return nil
}

// Get returns a tool definition.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// IsWriteTool reports whether a tool mutates host state.
func (r *Registry) IsWriteTool(name string) bool {
	def, ok := r.Get(name)
	return ok && def.Write
}

// ValidateRequest checks tool existence and the request params against the
// tool's schema.
func (r *Registry) ValidateRequest(env *protocol.RequestEnvelope) *protocol.Diagnostic {
	def, ok := r.Get(env.Tool)
	if !ok || !def.Enabled {
		d := protocol.Errorf(protocol.CodeToolNotFound, "tool is not registered")
		d.Detail = env.Tool
		d.Suggestion = "call tools.list to discover available tools"
		return &d
	}
	if def.ParamsSchema != nil {
		if d := validateValue(env.Params, def.ParamsSchema, "params"); d != nil {
			return d
		}
	}
	return nil
}

// Execute runs the tool handler with panic containment. A handler that
// reports error status without an error diagnostic gets a synthesized
// INTERNAL_EXCEPTION so clients always see a cause.
func (r *Registry) Execute(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
	def, ok := r.Get(env.Tool)
	if !ok {
		result.Fail(protocol.Errorf(protocol.CodeToolNotFound, "tool is not registered"))
		return
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Str("tool", env.Tool).Any("panic", rec).Msg("tool handler panicked")
				d := protocol.Errorf(protocol.CodeInternalException, "tool execution panicked")
				d.Detail = fmt.Sprintf("%v", rec)
				result.Fail(d)
			}
		}()
		def.Handler(env, result)
	}()

	if result.Result == nil {
		result.Result = map[string]any{}
	}
	if result.Status == protocol.StatusError && !hasErrorDiagnostic(result) {
		result.Fail(protocol.Errorf(protocol.CodeInternalException, "tool reported failure without diagnostics"))
	}
}

func hasErrorDiagnostic(result *protocol.ExecutionResult) bool {
	for _, d := range result.Diagnostics {
		if d.Severity == protocol.SeverityError {
			return true
		}
	}
	return false
}

// SchemaHash digests every enabled tool's name and schemas. Clients compare
// it against a cached tools.list to skip re-fetching.
func (r *Registry) SchemaHash() string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name, def := range r.tools {
		if def.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	h := sha1.New()
	for _, name := range names {
		def := r.tools[name]
		params, _ := protocol.CanonicalJSON(def.ParamsSchema)
		results, _ := protocol.CanonicalJSON(def.ResultSchema)
		fmt.Fprintf(h, "%s|%s|%s\n", name, params, results)
	}
	r.mu.RUnlock()
	return hex.EncodeToString(h.Sum(nil))
}

// Capabilities lists the protocol feature flags this bridge supports.
func (r *Registry) Capabilities() []string {
	return []string{
		"core_tools_v1",
		"asset_ops_v1",
		"changeset_ops_v1",
		"job_ops_v1",
		"idempotency_v1",
		"lock_lease_v1",
		"schema_validation_v1",
		"timeout_override_v1",
		"event_stream_v1",
		"observability_metrics_v1",
		"event_stream_ws_push_v1",
	}
}

// BuildToolsList renders the tools.list rows, sorted by name.
func (r *Registry) BuildToolsList(includeSchemas bool, domainFilter string) []map[string]any {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []map[string]any{}
	for _, name := range names {
		def := r.tools[name]
		if domainFilter != "" && def.Domain != domainFilter {
			continue
		}
		row := map[string]any{
			"name":    def.Name,
			"domain":  def.Domain,
			"version": def.Version,
			"enabled": def.Enabled,
			"write":   def.Write,
		}
		if includeSchemas {
			row["params_schema"] = def.ParamsSchema
			row["result_schema"] = def.ResultSchema
		}
		out = append(out, row)
	}
	r.mu.RUnlock()
	return out
}
