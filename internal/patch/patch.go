// Package patch implements the two generations of the property patch engine.
// The flat engine accepts single-segment JSON-pointer paths against top-level
// properties; the recursive engine walks structs, arrays, maps, and sets.
// Both abort the whole batch on the first failing operation; callers wrap
// applications in a host transaction so a failed batch leaves no trace.
package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/forgebridge/forgebridge/internal/protocol"
)

// Op is one decoded patch operation.
type Op struct {
	Op       string
	Path     string
	Value    any
	HasValue bool
}

// ParseOps decodes the wire form of a patch array. Every entry must be an
// object carrying op and path.
func ParseOps(raw []any) ([]Op, *protocol.Diagnostic) {
	ops := make([]Op, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			d := protocol.Errorf(protocol.CodeSchemaInvalidParams, "patch entry must be a JSON object")
			return nil, &d
		}
		op := Op{}
		op.Op, _ = obj["op"].(string)
		op.Path, _ = obj["path"].(string)
		op.Value, op.HasValue = obj["value"]
		if op.Op == "" || op.Path == "" {
			d := protocol.Errorf(protocol.CodeSchemaInvalidParams, "patch entry requires op and path")
			return nil, &d
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// splitPath tokenizes a JSON-pointer style path, dropping empty segments and
// decoding ~1 and ~0 escapes per segment.
func splitPath(path string) []string {
	var tokens []string
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		tokens = append(tokens, decodeToken(seg))
	}
	return tokens
}

func decodeToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}

func invalidParams(message, detail string) *protocol.Diagnostic {
	d := protocol.Errorf(protocol.CodeSchemaInvalidParams, message)
	d.Detail = detail
	return &d
}

func notEditable(name string) *protocol.Diagnostic {
	d := protocol.Errorf(protocol.CodePropertyNotEditable, "property is not editable")
	d.Detail = name
	return &d
}

func appendUnique(list []string, name string) []string {
	for _, n := range list {
		if n == name {
			return list
		}
	}
	return append(list, name)
}

// DryRunRoots resolves which root properties a batch would touch without
// mutating anything. Paths that do not decode to at least one segment fail.
func DryRunRoots(ops []Op) ([]string, *protocol.Diagnostic) {
	roots := []string{}
	for _, op := range ops {
		tokens := splitPath(op.Path)
		if len(tokens) == 0 {
			return nil, invalidParams("patch path is invalid", op.Path)
		}
		roots = appendUnique(roots, tokens[0])
	}
	return roots, nil
}

func opIs(op string, names ...string) bool {
	for _, n := range names {
		if strings.EqualFold(op, n) {
			return true
		}
	}
	return false
}

func parseIndex(token string) (int, bool) {
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func needsValue(op string) bool {
	return opIs(op, "add", "replace", "merge", "inc", "test")
}

func fmtDetail(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
