package topology

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/toscaforge/tosca/diagnostic"
	"github.com/toscaforge/tosca/nodefilter"
	"github.com/toscaforge/tosca/scalarunit"
	"github.com/toscaforge/tosca/tplfunction"
	"github.com/toscaforge/tosca/typesystem"
)

func fields(node *yaml.Node) (map[string]*yaml.Node, error) {
	if node == nil {
		return map[string]*yaml.Node{}, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping, got %v", node.Kind)
	}
	out := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out[node.Content[i].Value] = node.Content[i+1]
	}
	return out, nil
}

func loadInputs(section *yaml.Node, sink *diagnostic.Sink, file string) (map[string]*InputDef, error) {
	out := map[string]*InputDef{}
	m, err := fields(section)
	if err != nil {
		return nil, sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "inputs"}, "%v", err)
	}
	for name, body := range m {
		f, err := fields(body)
		if err != nil {
			_ = sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "inputs." + name}, "%v", err)
			continue
		}
		in := &InputDef{Name: name, Required: true}
		if v, ok := f["type"]; ok {
			in.Type = typesystem.QualifiedName(v.Value)
		}
		if v, ok := f["required"]; ok {
			in.Required = v.Value != "false"
		}
		if v, ok := f["description"]; ok {
			in.Description = v.Value
		}
		if v, ok := f["default"]; ok {
			var dv any
			if err := v.Decode(&dv); err != nil {
				_ = sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "inputs." + name + ".default"}, "%v", err)
				continue
			}
			in.Default = dv
		}
		if v, ok := f["constraints"]; ok {
			clauses, err := decodeConstraints(v)
			if err != nil {
				_ = sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "inputs." + name + ".constraints"}, "%v", err)
				continue
			}
			in.Constraints = clauses
		}
		out[name] = in
	}
	return out, nil
}

// bindInputs resolves caller-supplied values over declared defaults,
// reporting required inputs that end up without a value and checking each
// bound value against the input's constraints (§4.D "Inputs"). The value is
// not checked against the input's declared type.
func bindInputs(inputs map[string]*InputDef, provided map[string]any, sink *diagnostic.Sink, file string) map[string]any {
	values := map[string]any{}
	for name, def := range inputs {
		if v, ok := provided[name]; ok {
			values[name] = v
		} else if def.Default != nil {
			values[name] = def.Default
		} else if def.Required {
			_ = sink.Errorf(diagnostic.KindMissingRequiredInput, diagnostic.Source{File: file, Path: "inputs." + name},
				"input %q is required but has no caller value or default", name)
			continue
		}
		if v, bound := values[name]; bound {
			for _, clause := range def.Constraints {
				if err := scalarunit.Evaluate(clause, v); err != nil {
					_ = sink.Errorf(diagnostic.KindConstraintViolation, diagnostic.Source{File: file, Path: "inputs." + name}, "%v", err)
				}
			}
		}
	}
	return values
}

func decodeConstraints(node *yaml.Node) ([]scalarunit.Clause, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a sequence of constraint clauses")
	}
	var out []scalarunit.Clause
	for _, item := range node.Content {
		f, err := fields(item)
		if err != nil {
			return nil, err
		}
		for opName, argNode := range f {
			clause, err := decodeClause(scalarunit.Op(opName), argNode)
			if err != nil {
				return nil, err
			}
			out = append(out, clause)
		}
	}
	return out, nil
}

func decodeClause(op scalarunit.Op, argNode *yaml.Node) (scalarunit.Clause, error) {
	switch op {
	case scalarunit.OpInRange:
		if argNode.Kind != yaml.SequenceNode || len(argNode.Content) != 2 {
			return scalarunit.Clause{}, fmt.Errorf("in_range requires a two-element list")
		}
		lo, err := decodeBoundValue(argNode.Content[0])
		if err != nil {
			return scalarunit.Clause{}, err
		}
		hi, err := decodeBoundValue(argNode.Content[1])
		if err != nil {
			return scalarunit.Clause{}, err
		}
		return scalarunit.Clause{Op: op, Args: []any{lo, hi}}, nil
	case scalarunit.OpValidValues:
		var vals []any
		if err := argNode.Decode(&vals); err != nil {
			return scalarunit.Clause{}, err
		}
		return scalarunit.Clause{Op: op, Args: vals}, nil
	default:
		v, err := decodeBoundValue(argNode)
		if err != nil {
			return scalarunit.Clause{}, err
		}
		return scalarunit.Clause{Op: op, Args: []any{v}}, nil
	}
}

func decodeBoundValue(node *yaml.Node) (any, error) {
	if node.Value == "UNBOUNDED" {
		return scalarunit.Unbounded, nil
	}
	if su, err := scalarunit.Parse(node.Value); err == nil && hasSpace(node.Value) {
		return su, nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func hasSpace(s string) bool {
	for _, r := range s {
		if r == ' ' {
			return true
		}
	}
	return false
}

// rawNodeTemplate is the pre-copy-merge YAML view of one node_templates entry.
type rawNodeTemplate struct {
	name string
	node *yaml.Node
}

func loadNodeTemplates(section *yaml.Node, sink *diagnostic.Sink, file string) (map[string]*rawNodeTemplate, []string, error) {
	m, err := fields(section)
	if err != nil {
		return nil, nil, sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates"}, "%v", err)
	}
	out := map[string]*rawNodeTemplate{}
	var order []string
	if section == nil {
		return out, order, nil
	}
	for i := 0; i+1 < len(section.Content); i += 2 {
		name := section.Content[i].Value
		out[name] = &rawNodeTemplate{name: name, node: section.Content[i+1]}
		order = append(order, name)
	}
	_ = m
	return out, order, nil
}

// resolveCopy applies the "copy: other_node" directive (deep-copy the
// referenced sibling as a base, then merge this entry's own fields over it),
// memoizing results and rejecting copy cycles (§4.D).
func resolveCopy(name string, raw map[string]*rawNodeTemplate, resolved map[string]*yaml.Node, visiting map[string]bool) (*yaml.Node, error) {
	if v, ok := resolved[name]; ok {
		return v, nil
	}
	if visiting[name] {
		return nil, fmt.Errorf("copy cycle detected at node template %q", name)
	}
	r, ok := raw[name]
	if !ok {
		return nil, fmt.Errorf("copy: no such node template %q", name)
	}
	f, err := fields(r.node)
	if err != nil {
		return nil, fmt.Errorf("node template %q: %w", name, err)
	}
	copyOf, hasCopy := f["copy"]
	if !hasCopy {
		resolved[name] = r.node
		return r.node, nil
	}
	visiting[name] = true
	base, err := resolveCopy(copyOf.Value, raw, resolved, visiting)
	if err != nil {
		return nil, fmt.Errorf("node template %q: %w", name, err)
	}
	visiting[name] = false
	merged := deepMergeYAML(base, r.node)
	resolved[name] = merged
	return merged, nil
}

// deepMergeYAML merges override's mappings over base's, recursively, with
// override winning on scalar/sequence conflicts — the same override-wins
// rule package config uses for layered configuration merging.
func deepMergeYAML(base, override *yaml.Node) *yaml.Node {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}
	if base.Kind != yaml.MappingNode || override.Kind != yaml.MappingNode {
		return override
	}
	merged := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	baseFields, _ := fields(base)
	seen := map[string]bool{}
	for i := 0; i+1 < len(override.Content); i += 2 {
		key, val := override.Content[i], override.Content[i+1]
		if key.Value == "copy" {
			continue
		}
		seen[key.Value] = true
		if baseVal, ok := baseFields[key.Value]; ok {
			merged.Content = append(merged.Content, key, deepMergeYAML(baseVal, val))
		} else {
			merged.Content = append(merged.Content, key, val)
		}
	}
	for i := 0; i+1 < len(base.Content); i += 2 {
		key, val := base.Content[i], base.Content[i+1]
		if seen[key.Value] || key.Value == "copy" {
			continue
		}
		merged.Content = append(merged.Content, key, val)
	}
	return merged
}

func decodeNodeTemplate(name string, node *yaml.Node, registry *typesystem.Registry, sink *diagnostic.Sink, file string) (*NodeTemplate, error) {
	f, err := fields(node)
	if err != nil {
		return nil, sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + name}, "%v", err)
	}
	typeName, ok := f["type"]
	if !ok {
		return nil, sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + name}, "node template %q has no type", name)
	}
	qname := typesystem.QualifiedName(typeName.Value)
	flat, err := registry.Flatten(qname)
	if err != nil {
		return nil, sink.Errorf(diagnostic.KindUnknownType, diagnostic.Source{File: file, Path: "node_templates." + name + ".type"},
			"node template %q: %v", name, err)
	}

	nt := &NodeTemplate{
		Name:         name,
		Type:         qname,
		Flattened:    flat,
		Properties:   map[string]tplfunction.ValueExpr{},
		Attributes:   map[string]tplfunction.ValueExpr{},
		Capabilities: map[string]*CapabilityAssignment{},
		Artifacts:    map[string]*ArtifactAssignment{},
		Interfaces:   map[string]*typesystem.InterfaceDef{},
	}

	if v, ok := f["properties"]; ok {
		pf, err := fields(v)
		if err != nil {
			return nil, sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + name + ".properties"}, "%v", err)
		}
		for pname, pval := range pf {
			def, known := flat.Properties[pname]
			if !known {
				sink.Warnf(diagnostic.KindUnknownField, diagnostic.Source{File: file, Path: "node_templates." + name + ".properties." + pname},
					"unknown property %q on type %q", pname, qname)
			}
			expr, err := tplfunction.DecodeValueExpr(pval)
			if err != nil {
				sink.Warnf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + name + ".properties." + pname}, "%v", err)
				continue
			}
			nt.Properties[pname] = expr
			if known && expr.Kind == tplfunction.KindLiteral {
				for _, clause := range def.Constraints {
					if err := scalarunit.Evaluate(clause, expr.Literal); err != nil {
						_ = sink.Errorf(diagnostic.KindConstraintViolation, diagnostic.Source{File: file, Path: "node_templates." + name + ".properties." + pname}, "%v", err)
					}
				}
			}
		}
	}
	for pname, def := range flat.Properties {
		if _, given := nt.Properties[pname]; given {
			continue
		}
		if def.Default != nil {
			nt.Properties[pname] = tplfunction.ValueExpr{Kind: tplfunction.KindLiteral, Literal: def.Default}
		} else if def.Required {
			sink.Warnf(diagnostic.KindMissingRequiredField, diagnostic.Source{File: file, Path: "node_templates." + name + ".properties." + pname},
				"required property %q has no value and no default", pname)
		}
	}

	if v, ok := f["attributes"]; ok {
		af, err := fields(v)
		if err != nil {
			return nil, sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + name + ".attributes"}, "%v", err)
		}
		for aname, aval := range af {
			expr, err := tplfunction.DecodeValueExpr(aval)
			if err != nil {
				sink.Warnf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + name + ".attributes." + aname}, "%v", err)
				continue
			}
			nt.Attributes[aname] = expr
		}
	}

	if v, ok := f["capabilities"]; ok {
		cf, err := fields(v)
		if err != nil {
			return nil, sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + name + ".capabilities"}, "%v", err)
		}
		for cname, cbody := range cf {
			capf, err := fields(cbody)
			if err != nil {
				continue
			}
			ca := &CapabilityAssignment{Name: cname, Properties: map[string]tplfunction.ValueExpr{}}
			if propsNode, ok := capf["properties"]; ok {
				pf, err := fields(propsNode)
				if err == nil {
					for pname, pval := range pf {
						expr, err := tplfunction.DecodeValueExpr(pval)
						if err == nil {
							ca.Properties[pname] = expr
						}
					}
				}
			}
			nt.Capabilities[cname] = ca
		}
	}

	if v, ok := f["artifacts"]; ok {
		af, err := fields(v)
		if err == nil {
			for aname, abody := range af {
				art := &ArtifactAssignment{Name: aname}
				if abody.Kind == yaml.ScalarNode {
					art.File = abody.Value
				} else if bf, err := fields(abody); err == nil {
					if fv, ok := bf["file"]; ok {
						art.File = fv.Value
					}
					if tv, ok := bf["type"]; ok {
						art.Type = typesystem.QualifiedName(tv.Value)
					}
				}
				nt.Artifacts[aname] = art
			}
		}
	}

	if v, ok := f["metadata"]; ok {
		var md map[string]any
		if err := v.Decode(&md); err == nil {
			nt.Metadata = md
		}
	}

	if v, ok := f["directives"]; ok {
		var dirs []string
		if err := v.Decode(&dirs); err == nil {
			nt.Directives = dirs
		}
	}

	if v, ok := f["node_filter"]; ok {
		var raw any
		if err := v.Decode(&raw); err == nil {
			nfilter, err := nodefilter.Parse(raw)
			if err != nil {
				sink.Warnf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + name + ".node_filter"}, "%v", err)
			} else {
				nt.NodeFilter = nfilter
			}
		}
	}

	nt.Requirements = decodeRequirementAssignments(name, f["requirements"], flat, sink, file)

	return nt, nil
}

// decodeRequirementAssignments pairs each flattened requirement slot with
// zero or more YAML-given assignments in declaration order (§4.D step 1:
// "next unfilled requirement position of matching name").
func decodeRequirementAssignments(nodeName string, section *yaml.Node, flat *typesystem.FlattenedView, sink *diagnostic.Sink, file string) []*RequirementAssignment {
	bySlotName := map[string][]*typesystem.RequirementDef{}
	var slotOrder []string
	for _, def := range flat.Requirements {
		if len(bySlotName[def.Name]) == 0 {
			slotOrder = append(slotOrder, def.Name)
		}
		bySlotName[def.Name] = append(bySlotName[def.Name], def)
	}
	used := map[string]int{}

	out := make([]*RequirementAssignment, 0, len(flat.Requirements))
	if section == nil {
		for _, name := range slotOrder {
			for _, def := range bySlotName[name] {
				out = append(out, &RequirementAssignment{Name: name, Def: def})
			}
		}
		return out
	}
	if section.Kind != yaml.SequenceNode {
		sink.Warnf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + nodeName + ".requirements"}, "expected a sequence")
		return out
	}
	for _, item := range section.Content {
		f, err := fields(item)
		if err != nil || len(f) != 1 {
			sink.Warnf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + nodeName + ".requirements"}, "each entry must be a single-key mapping")
			continue
		}
		for reqName, body := range f {
			slots := bySlotName[reqName]
			idx := used[reqName]
			used[reqName] = idx + 1
			var def *typesystem.RequirementDef
			if idx < len(slots) {
				def = slots[idx]
			} else if len(slots) > 0 {
				def = slots[len(slots)-1] // extra assignment beyond declared slots: append, reuse last slot's constraints
			} else {
				sink.Warnf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + nodeName + ".requirements." + reqName},
					"requirement %q is not declared by type", reqName)
				def = &typesystem.RequirementDef{Name: reqName, Occurrences: typesystem.Occurrences{Min: 0, Max: typesystem.UnboundedOccurrences}}
			}
			ra := decodeOneRequirement(nodeName, reqName, body, def, sink, file)
			out = append(out, ra)
		}
	}
	// append any undeclared-in-YAML slots so occurrence checks still see them
	for _, name := range slotOrder {
		already := 0
		for _, ra := range out {
			if ra.Name == name {
				already++
			}
		}
		for already < len(bySlotName[name]) {
			out = append(out, &RequirementAssignment{Name: name, Def: bySlotName[name][already]})
			already++
		}
	}
	return out
}

func decodeOneRequirement(nodeName, reqName string, body *yaml.Node, def *typesystem.RequirementDef, sink *diagnostic.Sink, file string) *RequirementAssignment {
	ra := &RequirementAssignment{Name: reqName, Def: def}
	if body.Kind == yaml.ScalarNode {
		ra.TargetNodeName = body.Value
		return ra
	}
	f, err := fields(body)
	if err != nil {
		sink.Warnf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + nodeName + ".requirements." + reqName}, "%v", err)
		return ra
	}
	if v, ok := f["node"]; ok {
		ra.TargetNodeName = v.Value
	}
	if v, ok := f["capability"]; ok {
		ra.TargetCapabilityName = v.Value
	}
	if v, ok := f["relationship"]; ok {
		rel := &RelationshipTemplate{Properties: map[string]tplfunction.ValueExpr{}}
		if v.Kind == yaml.ScalarNode {
			rel.Type = typesystem.QualifiedName(v.Value)
		} else if rf, err := fields(v); err == nil {
			if tv, ok := rf["type"]; ok {
				rel.Type = typesystem.QualifiedName(tv.Value)
			}
			if pv, ok := rf["properties"]; ok {
				if pf, err := fields(pv); err == nil {
					for pname, pval := range pf {
						if expr, err := tplfunction.DecodeValueExpr(pval); err == nil {
							rel.Properties[pname] = expr
						}
					}
				}
			}
		}
		ra.Relationship = rel
	}
	if v, ok := f["node_filter"]; ok {
		var raw any
		if err := v.Decode(&raw); err == nil {
			if nf, err := nodefilter.Parse(raw); err == nil {
				ra.NodeFilter = nf
			} else {
				sink.Warnf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + nodeName + ".requirements." + reqName + ".node_filter"}, "%v", err)
			}
		}
	}
	return ra
}

func loadGroups(section *yaml.Node, sink *diagnostic.Sink, file string) map[string]*GroupTemplate {
	out := map[string]*GroupTemplate{}
	f, err := fields(section)
	if err != nil {
		_ = sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "groups"}, "%v", err)
		return out
	}
	for name, body := range f {
		gf, err := fields(body)
		if err != nil {
			continue
		}
		g := &GroupTemplate{Name: name}
		if v, ok := gf["type"]; ok {
			g.Type = typesystem.QualifiedName(v.Value)
		}
		if v, ok := gf["members"]; ok {
			var members []string
			_ = v.Decode(&members)
			g.Members = members
		}
		out[name] = g
	}
	return out
}

func loadPolicies(section *yaml.Node, sink *diagnostic.Sink, file string) map[string]*PolicyTemplate {
	out := map[string]*PolicyTemplate{}
	f, err := fields(section)
	if err != nil {
		_ = sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "policies"}, "%v", err)
		return out
	}
	for name, body := range f {
		pf, err := fields(body)
		if err != nil {
			continue
		}
		p := &PolicyTemplate{Name: name}
		if v, ok := pf["type"]; ok {
			p.Type = typesystem.QualifiedName(v.Value)
		}
		if v, ok := pf["targets"]; ok {
			var targets []string
			_ = v.Decode(&targets)
			p.Targets = targets
		}
		out[name] = p
	}
	return out
}

func loadOutputs(section *yaml.Node, sink *diagnostic.Sink, file string) map[string]tplfunction.ValueExpr {
	out := map[string]tplfunction.ValueExpr{}
	f, err := fields(section)
	if err != nil {
		_ = sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "outputs"}, "%v", err)
		return out
	}
	for name, body := range f {
		bf, err := fields(body)
		if err != nil {
			continue
		}
		valNode, ok := bf["value"]
		if !ok {
			continue
		}
		expr, err := tplfunction.DecodeValueExpr(valNode)
		if err != nil {
			sink.Warnf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "outputs." + name}, "%v", err)
			continue
		}
		out[name] = expr
	}
	return out
}

func loadSubstitutionMappings(section *yaml.Node) *SubstitutionMapping {
	if section == nil {
		return nil
	}
	f, err := fields(section)
	if err != nil {
		return nil
	}
	sm := &SubstitutionMapping{
		Properties:   map[string]string{},
		Capabilities: map[string][2]string{},
		Requirements: map[string][2]string{},
	}
	if v, ok := f["node_type"]; ok {
		sm.NodeType = typesystem.QualifiedName(v.Value)
	}
	if v, ok := f["properties"]; ok {
		pf, _ := fields(v)
		for name, val := range pf {
			sm.Properties[name] = val.Value
		}
	}
	if v, ok := f["capabilities"]; ok {
		cf, _ := fields(v)
		for name, val := range cf {
			var pair [2]string
			var list []string
			if err := val.Decode(&list); err == nil && len(list) == 2 {
				pair[0], pair[1] = list[0], list[1]
			}
			sm.Capabilities[name] = pair
		}
	}
	if v, ok := f["requirements"]; ok {
		rf, _ := fields(v)
		for name, val := range rf {
			var pair [2]string
			var list []string
			if err := val.Decode(&list); err == nil && len(list) == 2 {
				pair[0], pair[1] = list[0], list[1]
			}
			sm.Requirements[name] = pair
		}
	}
	return sm
}
