package typesystem

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/toscaforge/tosca/diagnostic"
	"github.com/toscaforge/tosca/scalarunit"
)

// SectionKind maps a YAML top-level block name to the Kind of type it
// declares, used by RegisterSection callers.
var SectionKind = map[string]Kind{
	"node_types":         KindNode,
	"relationship_types": KindRelationship,
	"capability_types":   KindCapability,
	"data_types":         KindData,
	"interface_types":    KindInterface,
	"artifact_types":     KindArtifact,
	"policy_types":       KindPolicy,
	"group_types":        KindGroup,
}

// RegisterSection decodes one node_types/relationship_types/.../group_types
// mapping node and registers each entry into r, qualifying every name with
// prefix (empty prefix merges directly into the current namespace, per
// §4.C). Duplicate names are reported via sink (non-fatal, §7). An entry
// marked metadata.alias is reported the same way: decoding never sets
// TypeDefinition.AliasOf, so Register rejects it for lacking an alias target.
func RegisterSection(r *Registry, kind Kind, section *yaml.Node, prefix, sourceFile string, sink *diagnostic.Sink) error {
	if section == nil {
		return nil
	}
	if section.Kind != yaml.MappingNode {
		return sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: sourceFile}, "expected a mapping of type name to definition")
	}
	for i := 0; i+1 < len(section.Content); i += 2 {
		nameNode, bodyNode := section.Content[i], section.Content[i+1]
		name := QualifiedName(qualify(prefix, nameNode.Value))
		def, err := decodeTypeDefinition(name, kind, bodyNode)
		if err != nil {
			if rerr := sink.Report(&diagnostic.Diagnostic{
				Severity: diagnostic.SeverityError,
				Kind:     diagnostic.KindSchemaError,
				Message:  err.Error(),
				Source:   diagnostic.Source{File: sourceFile, Line: bodyNode.Line, Column: bodyNode.Column, Path: string(name)},
			}); rerr != nil {
				return rerr
			}
			continue
		}
		if err := r.Register(def); err != nil {
			if rerr := sink.Report(&diagnostic.Diagnostic{
				Severity: diagnostic.SeverityError,
				Kind:     diagnostic.KindDuplicateType,
				Message:  err.Error(),
				Source:   diagnostic.Source{File: sourceFile, Line: nameNode.Line, Column: nameNode.Column, Path: string(name)},
			}); rerr != nil {
				return rerr
			}
		}
	}
	return nil
}

func qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func decodeTypeDefinition(name QualifiedName, kind Kind, body *yaml.Node) (*TypeDefinition, error) {
	def := &TypeDefinition{
		Name:         name,
		Kind:         kind,
		Properties:   map[string]*PropertyDef{},
		Attributes:   map[string]*PropertyDef{},
		Capabilities: map[string]*CapabilityDef{},
		Interfaces:   map[string]*InterfaceDef{},
		Artifacts:    map[string]*ArtifactDef{},
	}
	m, err := fields(body)
	if err != nil {
		return nil, fmt.Errorf("type %s: %w", name, err)
	}
	if v, ok := m["derived_from"]; ok {
		def.Parent = QualifiedName(v.Value)
	}
	if v, ok := m["description"]; ok {
		def.Description = v.Value
	}
	if v, ok := m["metadata"]; ok {
		md, err := decodeMapAny(v)
		if err != nil {
			return nil, fmt.Errorf("type %s: metadata: %w", name, err)
		}
		def.Metadata = md
	}
	if v, ok := m["properties"]; ok {
		defs, err := decodePropertyMap(v)
		if err != nil {
			return nil, fmt.Errorf("type %s: properties: %w", name, err)
		}
		def.Properties = defs
	}
	if v, ok := m["attributes"]; ok {
		defs, err := decodePropertyMap(v)
		if err != nil {
			return nil, fmt.Errorf("type %s: attributes: %w", name, err)
		}
		def.Attributes = defs
	}
	if v, ok := m["capabilities"]; ok {
		defs, err := decodeCapabilityMap(v)
		if err != nil {
			return nil, fmt.Errorf("type %s: capabilities: %w", name, err)
		}
		def.Capabilities = defs
	}
	if v, ok := m["requirements"]; ok {
		reqs, err := decodeRequirementList(v)
		if err != nil {
			return nil, fmt.Errorf("type %s: requirements: %w", name, err)
		}
		def.Requirements = reqs
	}
	if v, ok := m["interfaces"]; ok {
		ifaces, err := decodeInterfaceMap(v)
		if err != nil {
			return nil, fmt.Errorf("type %s: interfaces: %w", name, err)
		}
		def.Interfaces = ifaces
	}
	if kind == KindArtifact {
		if v, ok := m["mime_type"]; ok {
			def.MimeType = v.Value
		}
		if v, ok := m["file_ext"]; ok {
			var exts []string
			if err := v.Decode(&exts); err != nil {
				return nil, fmt.Errorf("type %s: file_ext: %w", name, err)
			}
			def.FileExt = exts
		}
	}
	return def, nil
}

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

func decodeMapAny(node *yaml.Node) (map[string]any, error) {
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping")
	}
	return m, nil
}

func decodePropertyMap(node *yaml.Node) (map[string]*PropertyDef, error) {
	m, err := fields(node)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*PropertyDef, len(m))
	for name, body := range m {
		p, err := decodeProperty(name, body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

func decodeProperty(name string, node *yaml.Node) (*PropertyDef, error) {
	f, err := fields(node)
	if err != nil {
		return nil, err
	}
	p := &PropertyDef{Name: name, Required: true, Status: StatusSupported}
	if v, ok := f["type"]; ok {
		p.Type = QualifiedName(v.Value)
	}
	if v, ok := f["required"]; ok {
		p.Required = v.Value != "false"
	}
	if v, ok := f["default"]; ok {
		var dv any
		if err := v.Decode(&dv); err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		p.Default = dv
	}
	if v, ok := f["description"]; ok {
		p.Description = v.Value
	}
	if v, ok := f["status"]; ok {
		p.Status = Status(v.Value)
	}
	if v, ok := f["constraints"]; ok {
		clauses, err := decodeConstraints(v)
		if err != nil {
			return nil, fmt.Errorf("constraints: %w", err)
		}
		p.Constraints = clauses
	}
	if v, ok := f["entry_schema"]; ok {
		switch v.Kind {
		case yaml.ScalarNode:
			p.EntrySchema = &PropertyDef{Type: QualifiedName(v.Value)}
		case yaml.MappingNode:
			es, err := decodeProperty(name+".entry_schema", v)
			if err != nil {
				return nil, err
			}
			p.EntrySchema = es
		}
	}
	return p, nil
}

func decodeConstraints(node *yaml.Node) ([]scalarunit.Clause, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a sequence")
	}
	var out []scalarunit.Clause
	for _, item := range node.Content {
		f, err := fields(item)
		if err != nil {
			return nil, err
		}
		for opName, argNode := range f {
			clause, err := decodeClause(opName, argNode)
			if err != nil {
				return nil, err
			}
			out = append(out, clause)
		}
	}
	return out, nil
}

func decodeClause(opName string, argNode *yaml.Node) (scalarunit.Clause, error) {
	op := scalarunit.Op(opName)
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
	if su, err := scalarunit.Parse(node.Value); err == nil && looksLikeScalarUnit(node.Value) {
		return su, nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func looksLikeScalarUnit(s string) bool {
	for _, r := range s {
		if r == ' ' {
			return true
		}
	}
	return false
}

func decodeCapabilityMap(node *yaml.Node) (map[string]*CapabilityDef, error) {
	m, err := fields(node)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*CapabilityDef, len(m))
	for name, body := range m {
		c, err := decodeCapability(name, body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = c
	}
	return out, nil
}

func decodeCapability(name string, node *yaml.Node) (*CapabilityDef, error) {
	// Shorthand form: "host: tosca.capabilities.Container"
	if node.Kind == yaml.ScalarNode {
		return &CapabilityDef{Name: name, Type: QualifiedName(node.Value), Occurrences: DefaultCapabilityOccurrences()}, nil
	}
	f, err := fields(node)
	if err != nil {
		return nil, err
	}
	c := &CapabilityDef{Name: name, Occurrences: DefaultCapabilityOccurrences()}
	if v, ok := f["type"]; ok {
		c.Type = QualifiedName(v.Value)
	}
	if v, ok := f["valid_source_types"]; ok {
		var vals []string
		if err := v.Decode(&vals); err != nil {
			return nil, fmt.Errorf("valid_source_types: %w", err)
		}
		for _, s := range vals {
			c.ValidSourceTypes = append(c.ValidSourceTypes, QualifiedName(s))
		}
	}
	if v, ok := f["occurrences"]; ok {
		occ, err := decodeOccurrences(v)
		if err != nil {
			return nil, fmt.Errorf("occurrences: %w", err)
		}
		c.Occurrences = occ
	}
	if v, ok := f["properties"]; ok {
		defs, err := decodePropertyMap(v)
		if err != nil {
			return nil, fmt.Errorf("properties: %w", err)
		}
		c.Properties = defs
	}
	if v, ok := f["attributes"]; ok {
		defs, err := decodePropertyMap(v)
		if err != nil {
			return nil, fmt.Errorf("attributes: %w", err)
		}
		c.Attributes = defs
	}
	return c, nil
}

func decodeOccurrences(node *yaml.Node) (Occurrences, error) {
	if node.Kind != yaml.SequenceNode || len(node.Content) != 2 {
		return Occurrences{}, fmt.Errorf("expected a two-element [min, max] list")
	}
	min, err := strconv.Atoi(node.Content[0].Value)
	if err != nil {
		return Occurrences{}, fmt.Errorf("min: %w", err)
	}
	max := UnboundedOccurrences
	if node.Content[1].Value != "UNBOUNDED" {
		max, err = strconv.Atoi(node.Content[1].Value)
		if err != nil {
			return Occurrences{}, fmt.Errorf("max: %w", err)
		}
	}
	return Occurrences{Min: min, Max: max}, nil
}

func decodeRequirementList(node *yaml.Node) ([]*RequirementDef, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a sequence")
	}
	out := make([]*RequirementDef, 0, len(node.Content))
	for _, item := range node.Content {
		f, err := fields(item)
		if err != nil {
			return nil, err
		}
		for name, body := range f {
			req, err := decodeRequirement(name, body)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out = append(out, req)
		}
	}
	return out, nil
}

func decodeRequirement(name string, node *yaml.Node) (*RequirementDef, error) {
	req := &RequirementDef{Name: name, Occurrences: Occurrences{Min: 1, Max: 1}}
	if node.Kind == yaml.ScalarNode {
		req.Capability = QualifiedName(node.Value)
		return req, nil
	}
	f, err := fields(node)
	if err != nil {
		return nil, err
	}
	if v, ok := f["capability"]; ok {
		req.Capability = QualifiedName(v.Value)
	}
	if v, ok := f["node"]; ok {
		req.Node = QualifiedName(v.Value)
	}
	if v, ok := f["relationship"]; ok {
		if v.Kind == yaml.ScalarNode {
			req.Relationship = QualifiedName(v.Value)
		} else if v.Kind == yaml.MappingNode {
			if rf, err := fields(v); err == nil {
				if tv, ok := rf["type"]; ok {
					req.Relationship = QualifiedName(tv.Value)
				}
			}
		}
	}
	if v, ok := f["occurrences"]; ok {
		occ, err := decodeOccurrences(v)
		if err != nil {
			return nil, fmt.Errorf("occurrences: %w", err)
		}
		req.Occurrences = occ
	}
	if v, ok := f["node_filter"]; ok {
		var raw any
		if err := v.Decode(&raw); err != nil {
			return nil, fmt.Errorf("node_filter: %w", err)
		}
		req.NodeFilter = &NodeFilter{Raw: raw}
	}
	return req, nil
}

func decodeInterfaceMap(node *yaml.Node) (map[string]*InterfaceDef, error) {
	m, err := fields(node)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*InterfaceDef, len(m))
	for name, body := range m {
		iface, err := decodeInterface(body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = iface
	}
	return out, nil
}

func decodeInterface(node *yaml.Node) (*InterfaceDef, error) {
	f, err := fields(node)
	if err != nil {
		return nil, err
	}
	iface := &InterfaceDef{
		Inputs:        map[string]*PropertyDef{},
		Operations:    map[string]*OperationDef{},
		Notifications: map[string]*OperationDef{},
	}
	if v, ok := f["type"]; ok {
		iface.Type = QualifiedName(v.Value)
	}
	if v, ok := f["inputs"]; ok {
		defs, err := decodePropertyMap(v)
		if err != nil {
			return nil, fmt.Errorf("inputs: %w", err)
		}
		iface.Inputs = defs
	}
	reserved := map[string]bool{"type": true, "inputs": true, "notifications": true}
	for opName, body := range f {
		if reserved[opName] {
			continue
		}
		op, err := decodeOperation(body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opName, err)
		}
		iface.Operations[opName] = op
	}
	if v, ok := f["notifications"]; ok {
		nm, err := fields(v)
		if err != nil {
			return nil, fmt.Errorf("notifications: %w", err)
		}
		for nname, body := range nm {
			op, err := decodeOperation(body)
			if err != nil {
				return nil, fmt.Errorf("notifications.%s: %w", nname, err)
			}
			iface.Notifications[nname] = op
		}
	}
	return iface, nil
}

func decodeOperation(node *yaml.Node) (*OperationDef, error) {
	if node.Kind == yaml.ScalarNode {
		return &OperationDef{Implementation: node.Value}, nil
	}
	f, err := fields(node)
	if err != nil {
		return nil, err
	}
	op := &OperationDef{Inputs: map[string]*PropertyDef{}, Outputs: map[string]*PropertyDef{}}
	if v, ok := f["implementation"]; ok {
		op.Implementation = v.Value
	}
	if v, ok := f["inputs"]; ok {
		defs, err := decodePropertyMap(v)
		if err != nil {
			return nil, fmt.Errorf("inputs: %w", err)
		}
		op.Inputs = defs
	}
	if v, ok := f["outputs"]; ok {
		defs, err := decodePropertyMap(v)
		if err != nil {
			return nil, fmt.Errorf("outputs: %w", err)
		}
		op.Outputs = defs
	}
	return op, nil
}
