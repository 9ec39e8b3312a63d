package typesystem

import (
	"fmt"

	"github.com/toscaforge/tosca/scalarunit"
)

// FlattenedView is the merged, override-applied view of a type's
// derived_from chain (§4.B step 4 / §9 "deep inheritance chains"). It is
// computed lazily and memoized per (type_name) within one Registry.
type FlattenedView struct {
	Type         QualifiedName
	Kind         Kind
	Properties   map[string]*PropertyDef
	Attributes   map[string]*PropertyDef
	Capabilities map[string]*CapabilityDef
	Requirements []*RequirementDef
	Interfaces   map[string]*InterfaceDef
	Artifacts    map[string]*ArtifactDef
}

// Flatten returns the memoized FlattenedView for name, computing and
// caching it (and every ancestor along the way) on first use.
func (r *Registry) Flatten(name QualifiedName) (*FlattenedView, error) {
	r.flattenMu.Lock()
	defer r.flattenMu.Unlock()
	return r.flattenLocked(name, nil)
}

func (r *Registry) flattenLocked(name QualifiedName, chain []QualifiedName) (*FlattenedView, error) {
	if cached, ok := r.flattenCache[name]; ok {
		return cached, nil
	}
	for _, seen := range chain {
		if seen == name {
			return nil, fmt.Errorf("%w: %s", ErrTypeCycle, name)
		}
	}

	r.mu.RLock()
	def, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	if def.IsAlias {
		return r.flattenLocked(def.AliasOf, chain)
	}

	var base *FlattenedView
	if def.Parent != "" {
		var err error
		base, err = r.flattenLocked(def.Parent, append(chain, name))
		if err != nil {
			return nil, err
		}
	}

	if base != nil {
		for pname, prop := range def.Properties {
			parent, ok := base.Properties[pname]
			if ok && prop.Type != "" && parent.Type != "" && !r.DerivesFrom(prop.Type, parent.Type) {
				return nil, fmt.Errorf("property %q: %w: type %q does not derive from %q", pname, ErrIncompatibleDerivation, prop.Type, parent.Type)
			}
		}
	}

	view, err := mergeOverride(base, def)
	if err != nil {
		return nil, err
	}
	r.flattenCache[name] = view
	return view, nil
}

func mergeOverride(base *FlattenedView, child *TypeDefinition) (*FlattenedView, error) {
	view := &FlattenedView{
		Type:         child.Name,
		Kind:         child.Kind,
		Properties:   map[string]*PropertyDef{},
		Attributes:   map[string]*PropertyDef{},
		Capabilities: map[string]*CapabilityDef{},
		Interfaces:   map[string]*InterfaceDef{},
		Artifacts:    map[string]*ArtifactDef{},
	}
	if base != nil {
		for k, v := range base.Properties {
			view.Properties[k] = v
		}
		for k, v := range base.Attributes {
			view.Attributes[k] = v
		}
		for k, v := range base.Capabilities {
			view.Capabilities[k] = v
		}
		for k, v := range base.Interfaces {
			view.Interfaces[k] = v
		}
		for k, v := range base.Artifacts {
			view.Artifacts[k] = v
		}
		view.Requirements = append(view.Requirements, base.Requirements...)
	}

	for name, prop := range child.Properties {
		merged, err := overrideProperty(view.Properties[name], prop)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		view.Properties[name] = merged
	}
	for name, attr := range child.Attributes {
		merged, err := overrideProperty(view.Attributes[name], attr)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		view.Attributes[name] = merged
	}
	for name, cap := range child.Capabilities {
		merged, err := overrideCapability(view.Capabilities[name], cap)
		if err != nil {
			return nil, fmt.Errorf("capability %q: %w", name, err)
		}
		view.Capabilities[name] = merged
	}
	for name, iface := range child.Interfaces {
		view.Interfaces[name] = overrideInterface(view.Interfaces[name], iface)
	}
	for name, art := range child.Artifacts {
		view.Artifacts[name] = art
	}

	view.Requirements = mergeRequirements(view.Requirements, child.Requirements)

	return view, nil
}

// overrideProperty applies §4.B's property override rules: required cannot
// relax true->false, constraints compose as AND (we append), default and
// description may be replaced. Type narrowing is not checked here because it
// requires a Registry (derivation lookup); flattenLocked checks it before
// calling mergeOverride.
func overrideProperty(parent, child *PropertyDef) (*PropertyDef, error) {
	if parent == nil {
		return child, nil
	}
	if parent.Required && !child.Required {
		return nil, fmt.Errorf("%w: cannot relax required:true to required:false", ErrIncompatibleDerivation)
	}
	merged := *child
	merged.Constraints = append(append([]scalarunit.Clause{}, parent.Constraints...), child.Constraints...)
	if merged.Default == nil {
		merged.Default = parent.Default
	}
	if merged.Type == "" {
		merged.Type = parent.Type
	}
	return &merged, nil
}

func overrideCapability(parent, child *CapabilityDef) (*CapabilityDef, error) {
	if parent == nil {
		return child, nil
	}
	merged := *child
	if merged.Type == "" {
		merged.Type = parent.Type
	}
	if merged.Occurrences == (Occurrences{}) {
		merged.Occurrences = parent.Occurrences
	} else if !merged.Occurrences.WithinParent(parent.Occurrences) {
		return nil, fmt.Errorf("%w: occurrences %+v do not narrow parent %+v", ErrIncompatibleDerivation, merged.Occurrences, parent.Occurrences)
	}
	merged.ValidSourceTypes = append(append([]QualifiedName{}, parent.ValidSourceTypes...), child.ValidSourceTypes...)
	props := map[string]*PropertyDef{}
	for k, v := range parent.Properties {
		props[k] = v
	}
	for k, v := range child.Properties {
		props[k] = v
	}
	merged.Properties = props
	return &merged, nil
}

func overrideInterface(parent, child *InterfaceDef) *InterfaceDef {
	if parent == nil {
		return child
	}
	merged := &InterfaceDef{
		Type:          child.Type,
		Inputs:        map[string]*PropertyDef{},
		Operations:    map[string]*OperationDef{},
		Notifications: map[string]*OperationDef{},
	}
	if merged.Type == "" {
		merged.Type = parent.Type
	}
	for k, v := range parent.Inputs {
		merged.Inputs[k] = v
	}
	for k, v := range child.Inputs {
		merged.Inputs[k] = v
	}
	for k, v := range parent.Operations {
		merged.Operations[k] = v
	}
	for name, op := range child.Operations {
		merged.Operations[name] = overrideOperation(merged.Operations[name], op)
	}
	for k, v := range parent.Notifications {
		merged.Notifications[k] = v
	}
	for k, v := range child.Notifications {
		merged.Notifications[k] = v
	}
	return merged
}

func overrideOperation(parent, child *OperationDef) *OperationDef {
	if parent == nil {
		return child
	}
	merged := &OperationDef{
		Implementation: child.Implementation,
		Inputs:         map[string]*PropertyDef{},
		Outputs:        map[string]*PropertyDef{},
	}
	if merged.Implementation == "" {
		merged.Implementation = parent.Implementation
	}
	for k, v := range parent.Inputs {
		merged.Inputs[k] = v
	}
	for k, v := range child.Inputs {
		merged.Inputs[k] = v
	}
	for k, v := range parent.Outputs {
		merged.Outputs[k] = v
	}
	for k, v := range child.Outputs {
		merged.Outputs[k] = v
	}
	return merged
}

// mergeRequirements appends child requirement slots after the inherited
// ones, except when a child slot shares both name and position with an
// inherited one (narrowing in place), per §4.B "addressed by name and
// position; child may append; may narrow capability/node".
func mergeRequirements(base []*RequirementDef, child []*RequirementDef) []*RequirementDef {
	out := append([]*RequirementDef{}, base...)
	for i, req := range child {
		if i < len(out) && out[i].Name == req.Name {
			narrowed := *out[i]
			if req.Capability != "" {
				narrowed.Capability = req.Capability
			}
			if req.Node != "" {
				narrowed.Node = req.Node
			}
			if req.Relationship != "" {
				narrowed.Relationship = req.Relationship
			}
			if req.Occurrences != (Occurrences{}) {
				narrowed.Occurrences = req.Occurrences
			}
			if req.NodeFilter != nil {
				narrowed.NodeFilter = req.NodeFilter
			}
			out[i] = &narrowed
			continue
		}
		out = append(out, req)
	}
	return out
}
