// Package substitution implements the §4.F substitution-mapping resolver:
// it checks that a topology's substitution_mappings block, if present,
// faithfully exposes its node_type's property/capability/requirement
// contract through the nested template's inputs, node capabilities, and
// node requirements.
package substitution

import (
	"fmt"

	"github.com/toscaforge/tosca/diagnostic"
	"github.com/toscaforge/tosca/topology"
	"github.com/toscaforge/tosca/typesystem"
)

// Validate checks topo.SubstitutionMappings (a no-op if nil) against
// registry's flattened view of the declared node_type, reporting every
// correspondence failure to sink (§4.F).
func Validate(registry *typesystem.Registry, topo *topology.Topology, sink *diagnostic.Sink, file string) {
	sm := topo.SubstitutionMappings
	if sm == nil {
		return
	}
	path := "topology_template.substitution_mappings"

	flat, err := registry.Flatten(sm.NodeType)
	if err != nil {
		_ = sink.Errorf(diagnostic.KindSubstitutionMapping, diagnostic.Source{File: file, Path: path},
			"substitution_mappings.node_type %q: %v", sm.NodeType, err)
		return
	}

	validateProperties(flat, topo, sink, file, path)
	validateCapabilities(registry, flat, sm, topo, sink, file, path)
	validateRequirements(registry, flat, sm, topo, sink, file, path)
}

// validateProperties checks that every non-optional, default-less property
// of node_type is receivable through a matching-type input, and that every
// input not corresponding to one of node_type's properties carries a
// default of its own (so it doesn't silently require an outer value nobody
// can supply).
func validateProperties(flat *typesystem.FlattenedView, topo *topology.Topology, sink *diagnostic.Sink, file, path string) {
	corresponding := map[string]bool{}
	for propName, propDef := range flat.Properties {
		inputName, mapped := topo.SubstitutionMappings.Properties[propName]
		if !mapped {
			inputName = propName
		}
		in, ok := topo.Inputs[inputName]
		if !ok {
			if propDef.Required && propDef.Default == nil {
				_ = sink.Errorf(diagnostic.KindMissingRequiredInput, diagnostic.Source{File: file, Path: path + ".properties." + propName},
					"substituted node_type property %q has no default and no corresponding input %q", propName, inputName)
			}
			continue
		}
		corresponding[inputName] = true
		if in.Type != "" && propDef.Type != "" && in.Type != propDef.Type {
			_ = sink.Errorf(diagnostic.KindTypeMismatch, diagnostic.Source{File: file, Path: path + ".properties." + propName},
				"input %q has type %q, but node_type property %q has type %q", inputName, in.Type, propName, propDef.Type)
		}
		if propDef.Required && propDef.Default == nil && !in.Required && in.Default == nil {
			_ = sink.Errorf(diagnostic.KindMissingRequiredInput, diagnostic.Source{File: file, Path: path + ".properties." + propName},
				"input %q corresponding to required property %q must itself be required or carry a default", inputName, propName)
		}
	}
	for name, in := range topo.Inputs {
		if corresponding[name] {
			continue
		}
		if in.Required && in.Default == nil {
			_ = sink.Errorf(diagnostic.KindMissingRequiredInput, diagnostic.Source{File: file, Path: path + ".properties"},
				"input %q does not correspond to a property of %q and has no default", name, topo.SubstitutionMappings.NodeType)
		}
	}
}

func validateCapabilities(registry *typesystem.Registry, flat *typesystem.FlattenedView, sm *topology.SubstitutionMapping, topo *topology.Topology, sink *diagnostic.Sink, file, path string) {
	for capName, capDef := range flat.Capabilities {
		pair, ok := sm.Capabilities[capName]
		if !ok {
			_ = sink.Errorf(diagnostic.KindSubstitutionMapping, diagnostic.Source{File: file, Path: path + ".capabilities." + capName},
				"node_type capability %q is not mapped to an inner node capability", capName)
			continue
		}
		innerNodeName, innerCapName := pair[0], pair[1]
		innerNode, ok := topo.NodeTemplates[innerNodeName]
		if !ok {
			_ = sink.Errorf(diagnostic.KindSubstitutionMapping, diagnostic.Source{File: file, Path: path + ".capabilities." + capName},
				"capability %q maps to unknown inner node %q", capName, innerNodeName)
			continue
		}
		innerCapDef, ok := innerNode.Flattened.Capabilities[innerCapName]
		if !ok {
			_ = sink.Errorf(diagnostic.KindSubstitutionMapping, diagnostic.Source{File: file, Path: path + ".capabilities." + capName},
				"inner node %q has no capability %q", innerNodeName, innerCapName)
			continue
		}
		if !registry.DerivesFrom(innerCapDef.Type, capDef.Type) {
			_ = sink.Errorf(diagnostic.KindTypeMismatch, diagnostic.Source{File: file, Path: path + ".capabilities." + capName},
				"inner capability %s.%s has type %q, incompatible with node_type capability %q's type %q",
				innerNodeName, innerCapName, innerCapDef.Type, capName, capDef.Type)
		}
	}
}

func validateRequirements(registry *typesystem.Registry, flat *typesystem.FlattenedView, sm *topology.SubstitutionMapping, topo *topology.Topology, sink *diagnostic.Sink, file, path string) {
	for _, reqDef := range flat.Requirements {
		pair, ok := sm.Requirements[reqDef.Name]
		if !ok {
			if reqDef.Occurrences.Min == 0 {
				continue
			}
			_ = sink.Errorf(diagnostic.KindSubstitutionMapping, diagnostic.Source{File: file, Path: path + ".requirements." + reqDef.Name},
				"node_type requirement %q is required but not mapped to an inner node requirement", reqDef.Name)
			continue
		}
		innerNodeName, innerReqName := pair[0], pair[1]
		innerNode, ok := topo.NodeTemplates[innerNodeName]
		if !ok {
			_ = sink.Errorf(diagnostic.KindSubstitutionMapping, diagnostic.Source{File: file, Path: path + ".requirements." + reqDef.Name},
				"requirement %q maps to unknown inner node %q", reqDef.Name, innerNodeName)
			continue
		}
		var innerReqDef *typesystem.RequirementDef
		for _, rd := range innerNode.Flattened.Requirements {
			if rd.Name == innerReqName {
				innerReqDef = rd
				break
			}
		}
		if innerReqDef == nil {
			_ = sink.Errorf(diagnostic.KindSubstitutionMapping, diagnostic.Source{File: file, Path: path + ".requirements." + reqDef.Name},
				"inner node %q has no requirement %q", innerNodeName, innerReqName)
			continue
		}
		if !occurrencesReconcilable(reqDef.Occurrences, innerReqDef.Occurrences) {
			_ = sink.Errorf(diagnostic.KindOccurrence, diagnostic.Source{File: file, Path: path + ".requirements." + reqDef.Name},
				"requirement %q occurrences %s are not reconcilable with inner requirement %s.%s's occurrences %s",
				reqDef.Name, fmtOccurrences(reqDef.Occurrences), innerNodeName, innerReqName, fmtOccurrences(innerReqDef.Occurrences))
		}
	}
}

// occurrencesReconcilable reports whether an outer requirement's bound can
// be satisfied by delegating to an inner requirement of its own bound: the
// inner slot must be able to accept at least as many bindings as the outer
// contract demands, and must not demand more than the outer contract can
// ever supply.
func occurrencesReconcilable(outer, inner typesystem.Occurrences) bool {
	if outer.Max != typesystem.UnboundedOccurrences && inner.Min > outer.Max {
		return false
	}
	if inner.Max != typesystem.UnboundedOccurrences && outer.Min > inner.Max {
		return false
	}
	return true
}

func fmtOccurrences(o typesystem.Occurrences) string {
	if o.Max == typesystem.UnboundedOccurrences {
		return fmt.Sprintf("[%d, UNBOUNDED]", o.Min)
	}
	return fmt.Sprintf("[%d, %d]", o.Min, o.Max)
}
