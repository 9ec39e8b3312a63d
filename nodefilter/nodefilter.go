// Package nodefilter evaluates a requirement's node_filter against
// candidate node templates during requirement binding (§4.D step 4): a
// conjunction of property and capability-property constraint clauses, plus
// an optional "script" gojq escape hatch for matchers the built-in clause
// vocabulary cannot express.
package nodefilter

import (
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/toscaforge/tosca/scalarunit"
)

// Filter is a parsed node_filter: every Properties and Capabilities clause
// entry and (if present) Script must match for a candidate to pass (AND
// semantics, matching constraint clause composition in §4.A).
type Filter struct {
	Properties   map[string][]scalarunit.Clause
	Capabilities map[string]map[string][]scalarunit.Clause
	Script       string

	compiled *gojq.Code
}

// Candidate is the minimal view of a node template nodefilter needs: its
// resolved property values and, per offered capability name, that
// capability's resolved property values. The elaborator supplies this view
// so nodefilter has no dependency on the topology package.
type Candidate struct {
	Properties          map[string]any
	CapabilityProperties map[string]map[string]any
}

// Parse decodes a node_filter's raw YAML subtree (already unmarshaled into
// native Go values by gopkg.in/yaml.v3's Node.Decode) into a Filter.
func Parse(raw any) (*Filter, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("nodefilter: node_filter must be a mapping")
	}
	f := &Filter{
		Properties:   map[string][]scalarunit.Clause{},
		Capabilities: map[string]map[string][]scalarunit.Clause{},
	}

	if props, ok := m["properties"]; ok {
		list, ok := props.([]any)
		if !ok {
			return nil, fmt.Errorf("nodefilter: properties must be a list")
		}
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("nodefilter: properties entries must be mappings")
			}
			for name, clauseList := range entry {
				clauses, err := decodeClauses(clauseList)
				if err != nil {
					return nil, fmt.Errorf("nodefilter: property %q: %w", name, err)
				}
				f.Properties[name] = append(f.Properties[name], clauses...)
			}
		}
	}

	if caps, ok := m["capabilities"]; ok {
		list, ok := caps.([]any)
		if !ok {
			return nil, fmt.Errorf("nodefilter: capabilities must be a list")
		}
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("nodefilter: capabilities entries must be mappings")
			}
			for capName, body := range entry {
				capBody, ok := body.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("nodefilter: capability %q must be a mapping", capName)
				}
				props, _ := capBody["properties"].([]any)
				for _, item := range props {
					entry, ok := item.(map[string]any)
					if !ok {
						return nil, fmt.Errorf("nodefilter: capability %q properties entries must be mappings", capName)
					}
					for name, clauseList := range entry {
						clauses, err := decodeClauses(clauseList)
						if err != nil {
							return nil, fmt.Errorf("nodefilter: capability %q property %q: %w", capName, name, err)
						}
						if f.Capabilities[capName] == nil {
							f.Capabilities[capName] = map[string][]scalarunit.Clause{}
						}
						f.Capabilities[capName][name] = append(f.Capabilities[capName][name], clauses...)
					}
				}
			}
		}
	}

	if script, ok := m["script"].(string); ok && script != "" {
		parsed, err := gojq.Parse(script)
		if err != nil {
			return nil, fmt.Errorf("nodefilter: invalid script %q: %w", script, err)
		}
		code, err := gojq.Compile(parsed)
		if err != nil {
			return nil, fmt.Errorf("nodefilter: failed to compile script %q: %w", script, err)
		}
		f.Script = script
		f.compiled = code
	}

	return f, nil
}

func decodeClauses(v any) ([]scalarunit.Clause, error) {
	entries, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of constraint clauses")
	}
	var out []scalarunit.Clause
	for _, e := range entries {
		clauseMap, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a mapping with one operator key")
		}
		for op, arg := range clauseMap {
			clause, err := buildClause(scalarunit.Op(op), arg)
			if err != nil {
				return nil, err
			}
			out = append(out, clause)
		}
	}
	return out, nil
}

func buildClause(op scalarunit.Op, arg any) (scalarunit.Clause, error) {
	switch op {
	case scalarunit.OpInRange:
		list, ok := arg.([]any)
		if !ok || len(list) != 2 {
			return scalarunit.Clause{}, fmt.Errorf("in_range requires a two-element list")
		}
		return scalarunit.Clause{Op: op, Args: []any{boundOf(list[0]), boundOf(list[1])}}, nil
	case scalarunit.OpValidValues:
		list, ok := arg.([]any)
		if !ok {
			return scalarunit.Clause{}, fmt.Errorf("valid_values requires a list")
		}
		return scalarunit.Clause{Op: op, Args: list}, nil
	default:
		return scalarunit.Clause{Op: op, Args: []any{boundOf(arg)}}, nil
	}
}

func boundOf(v any) any {
	if s, ok := v.(string); ok {
		if s == "UNBOUNDED" {
			return scalarunit.Unbounded
		}
		if su, err := scalarunit.Parse(s); err == nil && hasSpace(s) {
			return su
		}
	}
	return v
}

func hasSpace(s string) bool {
	for _, r := range s {
		if r == ' ' {
			return true
		}
	}
	return false
}

// Match reports whether candidate satisfies every clause of f. The first
// failing clause's error is returned as the non-match reason; a nil error
// with false ok is never returned — callers should treat a non-nil error as
// "does not match" rather than a hard failure (§4.D step 4: node_filter
// mismatches are simply skipped when searching for a candidate, not fatal).
func (f *Filter) Match(c *Candidate) (bool, error) {
	for name, clauses := range f.Properties {
		val, ok := c.Properties[name]
		if !ok {
			return false, fmt.Errorf("candidate has no property %q", name)
		}
		for _, clause := range clauses {
			if err := scalarunit.Evaluate(clause, val); err != nil {
				return false, err
			}
		}
	}
	for capName, props := range f.Capabilities {
		capProps, ok := c.CapabilityProperties[capName]
		if !ok {
			return false, fmt.Errorf("candidate has no capability %q", capName)
		}
		for name, clauses := range props {
			val, ok := capProps[name]
			if !ok {
				return false, fmt.Errorf("candidate capability %q has no property %q", capName, name)
			}
			for _, clause := range clauses {
				if err := scalarunit.Evaluate(clause, val); err != nil {
					return false, err
				}
			}
		}
	}
	if f.compiled != nil {
		input := map[string]any{"properties": c.Properties, "capabilities": c.CapabilityProperties}
		iter := f.compiled.Run(input)
		v, ok := iter.Next()
		if !ok {
			return false, fmt.Errorf("node_filter script produced no result")
		}
		if err, isErr := v.(error); isErr {
			return false, fmt.Errorf("node_filter script: %w", err)
		}
		matched, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("node_filter script must evaluate to a boolean, got %T", v)
		}
		if !matched {
			return false, fmt.Errorf("node_filter script did not match")
		}
	}
	return true, nil
}
