// Package policy gates tool execution. Two layers run in order: the safe
// mode check, which blocks every write tool while the host runs a live
// simulation session, and declarative deny rules loaded from a YAML file and
// evaluated with expr-lang expressions against the request.
//
// Rule file shape:
//
//	version: policy-1
//	rules:
//	  - name: no-deletes-in-ci
//	    when: tool == "asset.delete" && session startsWith "ci-"
//	    deny_message: asset deletion is not allowed from CI sessions
package policy

import (
	"fmt"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/forgebridge/forgebridge/internal/protocol"
)

// DefaultVersion is stamped on change-set records created under this policy.
const DefaultVersion = "policy-1"

// Policy is what the router consults around tool execution.
type Policy interface {
	// PreflightAuthorize runs before lock acquisition for write tools. A
	// non-nil diagnostic denies the request.
	PreflightAuthorize(env *protocol.RequestEnvelope, write bool) *protocol.Diagnostic
	// PostflightApply observes the finished result. It never mutates it.
	PostflightApply(env *protocol.RequestEnvelope, result *protocol.ExecutionResult)
	// Version identifies the active policy for change-set provenance.
	Version() string
}

// SimulationStater reports whether the host is in a live simulation session.
// Implemented by the host.
type SimulationStater interface {
	Simulating() bool
}

type ruleSpec struct {
	Name        string `yaml:"name"`
	When        string `yaml:"when"`
	DenyMessage string `yaml:"deny_message"`
}

type ruleFile struct {
	Version string     `yaml:"version"`
	Rules   []ruleSpec `yaml:"rules"`
}

type compiledRule struct {
	spec    ruleSpec
	program *vm.Program
}

// RulePolicy is the concrete policy: safe mode plus compiled deny rules.
type RulePolicy struct {
	sim     SimulationStater
	project string
	version string
	rules   []compiledRule
}

// New builds a policy with no deny rules, safe mode only.
func New(sim SimulationStater, project string) *RulePolicy {
	return &RulePolicy{sim: sim, project: project, version: DefaultVersion}
}

// Load reads and compiles a YAML rule file on top of the safe mode check.
func Load(path string, sim SimulationStater, project string) (*RulePolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", path, err)
	}

	p := New(sim, project)
	if file.Version != "" {
		p.version = file.Version
	}
	for _, spec := range file.Rules {
		program, err := expr.Compile(spec.When, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("policy: rule %q: %w", spec.Name, err)
		}
		p.rules = append(p.rules, compiledRule{spec: spec, program: program})
	}
	log.Info().Int("rules", len(p.rules)).Str("version", p.version).Msg("policy rules loaded")
	return p, nil
}

func (p *RulePolicy) Version() string { return p.version }

func (p *RulePolicy) PreflightAuthorize(env *protocol.RequestEnvelope, write bool) *protocol.Diagnostic {
	if write && p.sim != nil && p.sim.Simulating() {
		d := protocol.Errorf(protocol.CodeEditorUnsafeState, "editor is running a simulation session")
		d.Retriable = true
		d.Suggestion = "stop the simulation session and retry"
		return &d
	}

	ruleEnv := map[string]any{
		"tool":    env.Tool,
		"session": env.SessionID,
		"project": p.project,
		"dry_run": env.DryRun,
		"write":   write,
		"params":  env.Params,
	}
	for _, rule := range p.rules {
		matched, err := expr.Run(rule.program, ruleEnv)
		if err != nil {
			log.Warn().Err(err).Str("rule", rule.spec.Name).Msg("policy rule evaluation failed")
			continue
		}
		if denied, ok := matched.(bool); ok && denied {
			message := rule.spec.DenyMessage
			if message == "" {
				message = "request denied by policy rule"
			}
			d := protocol.Errorf(protocol.CodePolicyDenied, message)
			d.Detail = rule.spec.Name
			return &d
		}
	}
	return nil
}

func (p *RulePolicy) PostflightApply(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
	log.Debug().
		Str("tool", env.Tool).
		Str("request_id", env.RequestID).
		Str("status", string(result.Status)).
		Msg("policy postflight")
}
