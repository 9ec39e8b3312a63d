// Package topology implements the TOSCA template elaborator (§4.D): it
// instantiates node/relationship/group/policy templates from registered
// types, fills defaults, binds requirements to targets, and enforces the
// structural invariants of an elaborated Topology. It also implements the
// tplfunction.Context the function evaluator needs to resolve references
// against the elaborated graph (§4.E).
package topology

import (
	"github.com/toscaforge/tosca/nodefilter"
	"github.com/toscaforge/tosca/scalarunit"
	"github.com/toscaforge/tosca/tplfunction"
	"github.com/toscaforge/tosca/typesystem"
)

// InputDef describes one topology_template input (§4.D).
type InputDef struct {
	Name        string
	Type        typesystem.QualifiedName
	Required    bool
	Default     any
	Constraints []ConstraintClause
	Description string
}

// ConstraintClause re-exports scalarunit.Clause under a topology-local name
// so callers need not import scalarunit directly for the common path; it is
// a type alias, not a wrapper, so values interoperate freely.
type ConstraintClause = scalarunit.Clause

// CapabilityAssignment is a node template's property overrides for one of
// its flattened type's capabilities.
type CapabilityAssignment struct {
	Name       string
	Properties map[string]tplfunction.ValueExpr
}

// ArtifactAssignment is a node template's concrete artifact binding.
type ArtifactAssignment struct {
	Name string
	File string
	Type typesystem.QualifiedName
}

// RelationshipTemplate is an instantiated (possibly inline, possibly named)
// relationship between a requirement's source and target node.
type RelationshipTemplate struct {
	Name       string
	Type       typesystem.QualifiedName
	Properties map[string]tplfunction.ValueExpr
	SourceNode string
	TargetNode string
}

// RequirementAssignment is one resolved (or deliberately left unresolved)
// requirement binding on a node template (§3 "RequirementAssignment").
type RequirementAssignment struct {
	Name                  string
	Def                   *typesystem.RequirementDef
	TargetNodeName        string
	TargetCapabilityName  string
	Relationship          *RelationshipTemplate
	NodeFilter            *nodefilter.Filter
	Unresolved            bool // true only when Def.Occurrences.Min == 0 and no binding was found
}

// NodeTemplate is an instantiated node, enriched with resolved requirement
// bindings during elaboration (§3 "NodeTemplate").
type NodeTemplate struct {
	Name         string
	Type         typesystem.QualifiedName
	Flattened    *typesystem.FlattenedView
	Properties   map[string]tplfunction.ValueExpr
	Attributes   map[string]tplfunction.ValueExpr
	Capabilities map[string]*CapabilityAssignment
	Requirements []*RequirementAssignment
	Interfaces   map[string]*typesystem.InterfaceDef
	Artifacts    map[string]*ArtifactAssignment
	Metadata     map[string]any
	Directives   []string
	NodeFilter   *nodefilter.Filter
}

func (nt *NodeTemplate) requirementByName(name string) *RequirementAssignment {
	for _, r := range nt.Requirements {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// GroupTemplate is a topology_template group (§4.D "Groups / policies").
type GroupTemplate struct {
	Name    string
	Type    typesystem.QualifiedName
	Members []string
}

// PolicyTemplate is a topology_template policy.
type PolicyTemplate struct {
	Name    string
	Type    typesystem.QualifiedName
	Targets []string
}

// SubstitutionMapping is the raw, unvalidated substitution_mappings block;
// package substitution performs the §4.F correspondence checks against a
// Registry.
type SubstitutionMapping struct {
	NodeType     typesystem.QualifiedName
	Properties   map[string]string      // outer property name -> inner input name
	Capabilities map[string][2]string   // outer capability name -> [inner_node, inner_capability]
	Requirements map[string][2]string   // outer requirement name -> [inner_node, inner_requirement]
}

// Topology is the fully elaborated result of §4.D (and, once bound, §4.E/
// §4.F). It is built incrementally by Elaborate and is read-only once
// returned (§3 "Lifecycle").
type Topology struct {
	registry *typesystem.Registry

	Inputs      map[string]*InputDef
	InputValues map[string]any
	Outputs     map[string]tplfunction.ValueExpr

	NodeTemplates         map[string]*NodeTemplate
	nodeOrder             []string
	RelationshipTemplates map[string]*RelationshipTemplate
	Groups                map[string]*GroupTemplate
	Policies              map[string]*PolicyTemplate
	SubstitutionMappings  *SubstitutionMapping
}

// NodeOrder returns node template names in topology declaration order,
// which requirement binding and node_filter candidate search both rely on
// for determinism (§4.D step 4 "pick the first match in topology
// declaration order").
func (t *Topology) NodeOrder() []string {
	out := make([]string, len(t.nodeOrder))
	copy(out, t.nodeOrder)
	return out
}

// Registry returns the type registry this topology was elaborated against.
func (t *Topology) Registry() *typesystem.Registry { return t.registry }
