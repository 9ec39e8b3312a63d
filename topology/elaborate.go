package topology

import (
	"gopkg.in/yaml.v3"

	"github.com/toscaforge/tosca/diagnostic"
	"github.com/toscaforge/tosca/nodefilter"
	"github.com/toscaforge/tosca/tplfunction"
	"github.com/toscaforge/tosca/typesystem"
)

// topLevelSection returns the value node for key within root's top-level
// mapping (unwrapping a DocumentNode if given), or nil if absent.
func topLevelSection(root *yaml.Node, key string) *yaml.Node {
	n := root
	if n != nil && n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// Elaborate instantiates the topology_template section of root against
// registry's flattened types, binds requirements, and validates groups,
// policies, and outputs (§4.D). It does not evaluate function trees or
// check substitution mappings — those are §4.E (package tplfunction) and
// §4.F (package substitution), run by the caller after elaboration.
func Elaborate(registry *typesystem.Registry, root *yaml.Node, file string, providedInputs map[string]any, sink *diagnostic.Sink) (*Topology, error) {
	tt := topLevelSection(root, "topology_template")
	if tt == nil {
		return nil, sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file}, "document has no topology_template section")
	}

	inputDefs, err := loadInputs(topLevelSection(tt, "inputs"), sink, file)
	if err != nil {
		return nil, err
	}
	inputValues := bindInputs(inputDefs, providedInputs, sink, file)

	rawTemplates, order, err := loadNodeTemplates(topLevelSection(tt, "node_templates"), sink, file)
	if err != nil {
		return nil, err
	}

	resolved := map[string]*yaml.Node{}
	visiting := map[string]bool{}
	topo := &Topology{
		registry:              registry,
		Inputs:                inputDefs,
		InputValues:           inputValues,
		NodeTemplates:         map[string]*NodeTemplate{},
		nodeOrder:             order,
		RelationshipTemplates: map[string]*RelationshipTemplate{},
	}

	for _, name := range order {
		mergedNode, err := resolveCopy(name, rawTemplates, resolved, visiting)
		if err != nil {
			_ = sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: file, Path: "node_templates." + name}, "%v", err)
			continue
		}
		nt, err := decodeNodeTemplate(name, mergedNode, registry, sink, file)
		if err != nil {
			continue
		}
		topo.NodeTemplates[name] = nt
	}

	bindRequirements(topo, sink, file)

	topo.Groups = loadGroups(topLevelSection(tt, "groups"), sink, file)
	validateGroupsAndPolicies(topo, registry, sink, file)
	topo.Policies = loadPolicies(topLevelSection(tt, "policies"), sink, file)
	validatePolicies(topo, registry, sink, file)

	topo.Outputs = loadOutputs(topLevelSection(tt, "outputs"), sink, file)
	topo.SubstitutionMappings = loadSubstitutionMappings(topLevelSection(tt, "substitution_mappings"))

	return topo, nil
}

// bindRequirements runs the §4.D step-4 binding algorithm for every
// requirement assignment of every node, in topology declaration order.
func bindRequirements(topo *Topology, sink *diagnostic.Sink, file string) {
	for _, name := range topo.nodeOrder {
		nt := topo.NodeTemplates[name]
		if nt == nil {
			continue
		}
		for _, ra := range nt.Requirements {
			bindOne(topo, nt, ra, sink, file)
		}
	}
	for _, name := range topo.nodeOrder {
		nt := topo.NodeTemplates[name]
		if nt == nil {
			continue
		}
		enforceOccurrences(topo, nt, sink, file)
	}
}

func bindOne(topo *Topology, nt *NodeTemplate, ra *RequirementAssignment, sink *diagnostic.Sink, file string) {
	path := "node_templates." + nt.Name + ".requirements." + ra.Name

	if ra.TargetNodeName != "" {
		target, ok := topo.NodeTemplates[ra.TargetNodeName]
		if !ok {
			_ = sink.Errorf(diagnostic.KindNoMatch, diagnostic.Source{File: file, Path: path},
				"requirement %q on %q references unknown node %q", ra.Name, nt.Name, ra.TargetNodeName)
			return
		}
		if ra.Def.Node != "" && !topo.registry.DerivesFrom(target.Type, ra.Def.Node) {
			_ = sink.Errorf(diagnostic.KindTypeMismatch, diagnostic.Source{File: file, Path: path},
				"requirement %q on %q: target %q (type %q) does not derive from %q", ra.Name, nt.Name, ra.TargetNodeName, target.Type, ra.Def.Node)
		}
		finishBinding(topo, nt, ra, target, sink, file, path)
		return
	}
	if ra.Def.Occurrences.Min == 0 && ra.TargetCapabilityName == "" && ra.NodeFilter == nil && ra.Relationship == nil {
		// an optional slot with nothing assigned stays unbound instead of
		// being searched for (and possibly ambiguous among) candidates
		ra.Unresolved = true
		return
	}

	candidates := candidateNodes(topo, nt, ra)
	if ra.NodeFilter != nil {
		var filtered []string
		for _, cand := range candidates {
			match, err := ra.NodeFilter.Match(candidateView(topo.NodeTemplates[cand]))
			if err != nil {
				continue
			}
			if match {
				filtered = append(filtered, cand)
			}
		}
		candidates = filtered
	}

	switch len(candidates) {
	case 0:
		if ra.Def.Occurrences.Min == 0 {
			ra.Unresolved = true
			return
		}
		_ = sink.Errorf(diagnostic.KindNoMatch, diagnostic.Source{File: file, Path: path},
			"requirement %q on %q: no node template satisfies capability %q", ra.Name, nt.Name, ra.Def.Capability)
		return
	case 1:
		finishBinding(topo, nt, ra, topo.NodeTemplates[candidates[0]], sink, file, path)
	default:
		if ra.NodeFilter != nil {
			// node_filter narrows to the first match in topology declaration
			// order (§4.D step 4), never an ambiguity error.
			finishBinding(topo, nt, ra, topo.NodeTemplates[candidates[0]], sink, file, path)
			return
		}
		_ = sink.Errorf(diagnostic.KindAmbiguousTarget, diagnostic.Source{File: file, Path: path},
			"requirement %q on %q: %d node templates offer capability %q, specify node or node_filter", ra.Name, nt.Name, len(candidates), ra.Def.Capability)
	}
}

// candidateNodes returns, in topology declaration order, every other node
// template offering a capability compatible with ra's slot (by explicit
// name if given, else by type), excluding nt itself.
func candidateNodes(topo *Topology, nt *NodeTemplate, ra *RequirementAssignment) []string {
	var out []string
	for _, name := range topo.nodeOrder {
		if name == nt.Name {
			continue
		}
		cand := topo.NodeTemplates[name]
		if cand == nil {
			continue
		}
		if ra.TargetCapabilityName != "" {
			if capDef, ok := cand.Flattened.Capabilities[ra.TargetCapabilityName]; ok {
				if ra.Def.Capability == "" || topo.registry.DerivesFrom(capDef.Type, ra.Def.Capability) {
					out = append(out, name)
				}
			}
			continue
		}
		for _, capDef := range cand.Flattened.Capabilities {
			if ra.Def.Capability != "" && topo.registry.DerivesFrom(capDef.Type, ra.Def.Capability) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

func candidateView(nt *NodeTemplate) *nodefilter.Candidate {
	c := &nodefilter.Candidate{
		Properties:           map[string]any{},
		CapabilityProperties: map[string]map[string]any{},
	}
	for name, expr := range nt.Properties {
		if expr.Kind == tplfunction.KindLiteral {
			c.Properties[name] = expr.Literal
		}
	}
	for capName, ca := range nt.Capabilities {
		props := map[string]any{}
		for pname, expr := range ca.Properties {
			if expr.Kind == tplfunction.KindLiteral {
				props[pname] = expr.Literal
			}
		}
		c.CapabilityProperties[capName] = props
	}
	return c
}

func finishBinding(topo *Topology, nt *NodeTemplate, ra *RequirementAssignment, target *NodeTemplate, sink *diagnostic.Sink, file, path string) {
	ra.TargetNodeName = target.Name

	capName := ra.TargetCapabilityName
	if capName == "" {
		for cn, capDef := range target.Flattened.Capabilities {
			if ra.Def.Capability == "" || topo.registry.DerivesFrom(capDef.Type, ra.Def.Capability) {
				capName = cn
				break
			}
		}
	}
	ra.TargetCapabilityName = capName

	if capName != "" {
		if capDef, ok := target.Flattened.Capabilities[capName]; ok && len(capDef.ValidSourceTypes) > 0 {
			allowed := false
			for _, vst := range capDef.ValidSourceTypes {
				if topo.registry.DerivesFrom(nt.Type, vst) {
					allowed = true
					break
				}
			}
			if !allowed {
				_ = sink.Errorf(diagnostic.KindTypeMismatch, diagnostic.Source{File: file, Path: path},
					"requirement %q on %q: source type %q is not in capability %q's valid_source_types", ra.Name, nt.Name, nt.Type, capName)
			}
		}
	}

	relType := ra.Def.Relationship
	if ra.Relationship != nil && ra.Relationship.Type != "" {
		relType = ra.Relationship.Type
	}
	rel := &RelationshipTemplate{
		Name:       nt.Name + "_" + ra.Name + "_" + target.Name,
		Type:       relType,
		SourceNode: nt.Name,
		TargetNode: target.Name,
		Properties: map[string]tplfunction.ValueExpr{},
	}
	if ra.Relationship != nil {
		for k, v := range ra.Relationship.Properties {
			rel.Properties[k] = v
		}
	}
	ra.Relationship = rel
	topo.RelationshipTemplates[rel.Name] = rel
}

// enforceOccurrences checks, after all assignments of a node have been
// bound, that each requirement slot's bound count falls within its
// occurrences bound (§4.D step 8).
func enforceOccurrences(topo *Topology, nt *NodeTemplate, sink *diagnostic.Sink, file string) {
	counts := map[string]int{}
	defs := map[string]*typesystem.RequirementDef{}
	for _, ra := range nt.Requirements {
		defs[ra.Name] = ra.Def
		if !ra.Unresolved && ra.TargetNodeName != "" {
			counts[ra.Name]++
		}
	}
	for name, def := range defs {
		n := counts[name]
		if !def.Occurrences.Contains(n) {
			_ = sink.Errorf(diagnostic.KindOccurrence, diagnostic.Source{File: file, Path: "node_templates." + nt.Name + ".requirements." + name},
				"requirement %q on %q: %d binding(s) outside occurrences %+v", name, nt.Name, n, def.Occurrences)
		}
	}
}

func validateGroupsAndPolicies(topo *Topology, registry *typesystem.Registry, sink *diagnostic.Sink, file string) {
	for name, g := range topo.Groups {
		if g.Type != "" && !registry.DerivesFrom(g.Type, "tosca.groups.Root") {
			_ = sink.Errorf(diagnostic.KindTypeMismatch, diagnostic.Source{File: file, Path: "groups." + name},
				"group %q type %q does not derive from tosca.groups.Root", name, g.Type)
		}
		for _, member := range g.Members {
			if _, ok := topo.NodeTemplates[member]; !ok {
				_ = sink.Errorf(diagnostic.KindNoMatch, diagnostic.Source{File: file, Path: "groups." + name + ".members"},
					"group %q references unknown node template %q", name, member)
			}
		}
	}
}

func validatePolicies(topo *Topology, registry *typesystem.Registry, sink *diagnostic.Sink, file string) {
	for name, p := range topo.Policies {
		if p.Type != "" && !registry.DerivesFrom(p.Type, "tosca.policies.Root") {
			_ = sink.Errorf(diagnostic.KindTypeMismatch, diagnostic.Source{File: file, Path: "policies." + name},
				"policy %q type %q does not derive from tosca.policies.Root", name, p.Type)
		}
		for _, target := range p.Targets {
			if _, ok := topo.NodeTemplates[target]; ok {
				continue
			}
			if _, ok := topo.Groups[target]; ok {
				continue
			}
			_ = sink.Errorf(diagnostic.KindNoMatch, diagnostic.Source{File: file, Path: "policies." + name + ".targets"},
				"policy %q references unknown target %q", name, target)
		}
	}
}
