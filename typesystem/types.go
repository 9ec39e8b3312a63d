// Package typesystem implements the TOSCA type hierarchy loader (§4.B): it
// registers normative and user-defined node/relationship/capability/data/
// interface/artifact/policy/group types, resolves derived_from chains, and
// produces a merged FlattenedView per type honoring the override rules of
// §4.B.
package typesystem

import (
	"fmt"
	"strings"

	"github.com/toscaforge/tosca/scalarunit"
)

// QualifiedName is a dotted TOSCA type identifier, e.g. "tosca.nodes.Compute".
// Lookups are case-sensitive; historical names are carried via metadata
// aliases rather than case folding (§9 Open Question).
type QualifiedName string

// Unqualified returns the last dotted segment, e.g. "Compute" for
// "tosca.nodes.Compute".
func (q QualifiedName) Unqualified() string {
	s := string(q)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Kind identifies which TOSCA type category a TypeDefinition belongs to.
type Kind string

const (
	KindNode         Kind = "node"
	KindRelationship Kind = "relationship"
	KindCapability   Kind = "capability"
	KindData         Kind = "data"
	KindInterface    Kind = "interface"
	KindArtifact     Kind = "artifact"
	KindPolicy       Kind = "policy"
	KindGroup        Kind = "group"
)

// Status marks the maturity of a property/attribute/operation definition.
type Status string

const (
	StatusSupported   Status = "supported"
	StatusExperimental Status = "experimental"
	StatusDeprecated  Status = "deprecated"
)

const (
	// UnboundedOccurrences is the sentinel max value meaning "no upper bound".
	UnboundedOccurrences = -1
)

// Occurrences is an integer multiplicity range [Min, Max]. Max ==
// UnboundedOccurrences denotes TOSCA's UNBOUNDED.
type Occurrences struct {
	Min int
	Max int
}

// DefaultCapabilityOccurrences is the default occurrences for a capability
// definition per §3: [1, UNBOUNDED].
func DefaultCapabilityOccurrences() Occurrences {
	return Occurrences{Min: 1, Max: UnboundedOccurrences}
}

// Contains reports whether n falls within the occurrences range.
func (o Occurrences) Contains(n int) bool {
	if n < o.Min {
		return false
	}
	if o.Max == UnboundedOccurrences {
		return true
	}
	return n <= o.Max
}

// WithinParent reports whether a child occurrences range is a valid
// narrowing of the parent range (§4.B: "tighten occurrences within the
// parent bounds").
func (o Occurrences) WithinParent(parent Occurrences) bool {
	if o.Min < parent.Min {
		return false
	}
	if parent.Max != UnboundedOccurrences {
		if o.Max == UnboundedOccurrences || o.Max > parent.Max {
			return false
		}
	}
	return true
}

// PropertyDef describes a property or attribute definition (§3).
type PropertyDef struct {
	Name        string
	Type        QualifiedName
	Required    bool
	Default     any
	Constraints []scalarunit.Clause
	EntrySchema *PropertyDef
	Status      Status
	Description string
}

// AttributeDef is structurally identical to PropertyDef; kept as a distinct
// name for clarity at call sites, matching §3's separate entity.
type AttributeDef = PropertyDef

// CapabilityDef describes a capability a node/relationship type offers (§3).
type CapabilityDef struct {
	Name             string
	Type             QualifiedName
	Properties       map[string]*PropertyDef
	Attributes       map[string]*PropertyDef
	ValidSourceTypes []QualifiedName
	Occurrences      Occurrences
}

// RequirementDef is one ordered requirement slot (§3). Order is semantically
// significant: two entries with the same Name are distinct positions.
type RequirementDef struct {
	Name         string
	Capability   QualifiedName
	Node         QualifiedName // optional
	Relationship QualifiedName // optional; empty means "inline or default"
	Occurrences  Occurrences
	NodeFilter   *NodeFilter
}

// NodeFilter is a placeholder referencing the nodefilter package's AST by
// value so typesystem has no import cycle with it; the elaborator
// re-interprets the stored tree.
type NodeFilter struct {
	Raw any // decoded YAML subtree; interpreted by package nodefilter
}

// OperationDef describes one interface operation (§3).
type OperationDef struct {
	Implementation string
	Inputs         map[string]*PropertyDef
	Outputs        map[string]*PropertyDef
}

// InterfaceDef describes an interface type or an interface assignment on a
// node/relationship type (§3). Notifications are validated structurally like
// operations but are never a valid get_operation_output target (SPEC_FULL).
type InterfaceDef struct {
	Type          QualifiedName
	Inputs        map[string]*PropertyDef
	Operations    map[string]*OperationDef
	Notifications map[string]*OperationDef
}

// ArtifactDef describes an artifact type definition.
type ArtifactDef struct {
	MimeType  string
	FileExt   []string
	Default   bool
}

// TypeDefinition is an immutable-once-registered type, per any of the eight
// TOSCA type kinds (§3).
type TypeDefinition struct {
	Name        QualifiedName
	Kind        Kind
	Parent      QualifiedName // empty if root
	Namespace   string
	Properties  map[string]*PropertyDef
	Attributes  map[string]*PropertyDef
	Capabilities map[string]*CapabilityDef
	Requirements []*RequirementDef
	Interfaces  map[string]*InterfaceDef
	Artifacts   map[string]*ArtifactDef
	Metadata    map[string]any
	Description string

	// MimeType and FileExt are populated only for Kind == KindArtifact.
	MimeType string
	FileExt  []string

	// IsAlias marks a secondary registration (metadata.alias: true) that
	// resolves to an existing type rather than introducing a new one.
	IsAlias   bool
	AliasOf   QualifiedName
}

func (t *TypeDefinition) String() string {
	return fmt.Sprintf("%s(%s)", t.Name, t.Kind)
}
