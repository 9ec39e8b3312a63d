package typesystem

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/toscaforge/tosca/diagnostic"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	RegisterProfile("test_profile_"+t.Name(), func(r *Registry) error { return nil })
	r, err := NewRegistry("test_profile_" + t.Name())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := newTestRegistry(t)
	def := &TypeDefinition{Name: "example.Thing", Kind: KindNode}
	if err := r.Register(def); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(def); !errors.Is(err, ErrDuplicateType) {
		t.Fatalf("got %v, want ErrDuplicateType", err)
	}
}

func TestRegisterAlias(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(&TypeDefinition{Name: "example.New", Kind: KindNode}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&TypeDefinition{Name: "example.Old", Kind: KindNode, AliasOf: "example.New", Metadata: map[string]any{"alias": true}}); err != nil {
		t.Fatalf("Register alias: %v", err)
	}

	def, ok, deprecated := r.Get("example.Old")
	if !ok || !deprecated {
		t.Fatalf("got ok=%v deprecated=%v, want true/true", ok, deprecated)
	}
	if def.Name != "example.New" {
		t.Fatalf("alias resolved to %q, want %q", def.Name, "example.New")
	}
}

func TestResolveDerivationsDetectsCycle(t *testing.T) {
	r := newTestRegistry(t)
	_ = r.Register(&TypeDefinition{Name: "a", Kind: KindNode, Parent: "b"})
	_ = r.Register(&TypeDefinition{Name: "b", Kind: KindNode, Parent: "a"})

	sink := diagnostic.NewSink(false)
	if _, err := r.ResolveDerivations(sink); err == nil {
		t.Fatalf("expected a cycle error")
	}
}

func TestDerivesFromWalksChain(t *testing.T) {
	r := newTestRegistry(t)
	_ = r.Register(&TypeDefinition{Name: "tosca.nodes.Root", Kind: KindNode})
	_ = r.Register(&TypeDefinition{Name: "tosca.nodes.Compute", Kind: KindNode, Parent: "tosca.nodes.Root"})
	_ = r.Register(&TypeDefinition{Name: "example.MyCompute", Kind: KindNode, Parent: "tosca.nodes.Compute"})

	if !r.DerivesFrom("example.MyCompute", "tosca.nodes.Root") {
		t.Fatalf("expected example.MyCompute to derive from tosca.nodes.Root")
	}
	if r.DerivesFrom("tosca.nodes.Root", "example.MyCompute") {
		t.Fatalf("did not expect the reverse derivation to hold")
	}
}

func TestFlattenMergesPropertiesAndRejectsRequiredRelaxation(t *testing.T) {
	r := newTestRegistry(t)
	_ = r.Register(&TypeDefinition{
		Name: "base", Kind: KindNode,
		Properties: map[string]*PropertyDef{
			"size": {Name: "size", Type: "integer", Required: true},
		},
	})
	_ = r.Register(&TypeDefinition{
		Name: "ok_child", Kind: KindNode, Parent: "base",
		Properties: map[string]*PropertyDef{
			"label": {Name: "label", Type: "string"},
		},
	})
	_ = r.Register(&TypeDefinition{
		Name: "bad_child", Kind: KindNode, Parent: "base",
		Properties: map[string]*PropertyDef{
			"size": {Name: "size", Type: "integer", Required: false},
		},
	})

	flat, err := r.Flatten("ok_child")
	if err != nil {
		t.Fatalf("Flatten ok_child: %v", err)
	}
	if _, ok := flat.Properties["size"]; !ok {
		t.Fatalf("expected inherited property %q", "size")
	}
	if _, ok := flat.Properties["label"]; !ok {
		t.Fatalf("expected own property %q", "label")
	}

	if _, err := r.Flatten("bad_child"); !errors.Is(err, ErrIncompatibleDerivation) {
		t.Fatalf("got %v, want ErrIncompatibleDerivation", err)
	}
}

func TestFlattenNarrowsCapabilityOccurrences(t *testing.T) {
	r := newTestRegistry(t)
	_ = r.Register(&TypeDefinition{
		Name: "base", Kind: KindNode,
		Capabilities: map[string]*CapabilityDef{
			"host": {Name: "host", Type: "tosca.capabilities.Container", Occurrences: Occurrences{Min: 0, Max: 2}},
		},
	})
	_ = r.Register(&TypeDefinition{
		Name: "narrowed", Kind: KindNode, Parent: "base",
		Capabilities: map[string]*CapabilityDef{
			"host": {Name: "host", Occurrences: Occurrences{Min: 1, Max: 1}},
		},
	})
	_ = r.Register(&TypeDefinition{
		Name: "widened", Kind: KindNode, Parent: "base",
		Capabilities: map[string]*CapabilityDef{
			"host": {Name: "host", Type: "tosca.capabilities.Container", Occurrences: Occurrences{Min: 0, Max: 5}},
		},
	})

	flat, err := r.Flatten("narrowed")
	if err != nil {
		t.Fatalf("Flatten narrowed: %v", err)
	}
	if flat.Capabilities["host"].Occurrences != (Occurrences{Min: 1, Max: 1}) {
		t.Fatalf("got %+v", flat.Capabilities["host"].Occurrences)
	}

	if _, err := r.Flatten("widened"); err == nil {
		t.Fatalf("expected widening max occurrences beyond parent to be rejected")
	}
}

func TestRegisterSectionDecodesNodeTypes(t *testing.T) {
	doc := `
tosca.nodes.MyCompute:
  derived_from: tosca.nodes.Root
  properties:
    num_cpus:
      type: integer
      required: true
      constraints:
        - greater_or_equal: 1
  capabilities:
    host:
      type: tosca.capabilities.Container
      occurrences: [1, 1]
  requirements:
    - dependency:
        capability: tosca.capabilities.Node
        occurrences: [0, UNBOUNDED]
`
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	section := root.Content[0]

	r := newTestRegistry(t)
	_ = r.Register(&TypeDefinition{Name: "tosca.nodes.Root", Kind: KindNode})

	sink := diagnostic.NewSink(false)
	if err := RegisterSection(r, KindNode, section, "", "test.yaml", sink); err != nil {
		t.Fatalf("RegisterSection: %v", err)
	}

	def, ok, _ := r.Get("tosca.nodes.MyCompute")
	if !ok {
		t.Fatalf("expected tosca.nodes.MyCompute to be registered")
	}
	prop, ok := def.Properties["num_cpus"]
	if !ok || !prop.Required || prop.Type != "integer" {
		t.Fatalf("got %+v", prop)
	}
	if len(prop.Constraints) != 1 {
		t.Fatalf("expected one constraint clause, got %d", len(prop.Constraints))
	}
	cap, ok := def.Capabilities["host"]
	if !ok || cap.Occurrences != (Occurrences{Min: 1, Max: 1}) {
		t.Fatalf("got %+v", cap)
	}
	if len(def.Requirements) != 1 || def.Requirements[0].Name != "dependency" {
		t.Fatalf("got %+v", def.Requirements)
	}
}
