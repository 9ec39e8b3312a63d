package substitution

import (
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/toscaforge/tosca/diagnostic"
	_ "github.com/toscaforge/tosca/normative"
	"github.com/toscaforge/tosca/topology"
	"github.com/toscaforge/tosca/typesystem"
)

func mustRegistry(t *testing.T) *typesystem.Registry {
	t.Helper()
	r, err := typesystem.NewRegistry("tosca_simple_yaml_1_3")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := r.Register(&typesystem.TypeDefinition{
		Name: "example.QueuingSubsystem", Kind: typesystem.KindNode, Parent: "tosca.nodes.Root",
		Properties: map[string]*typesystem.PropertyDef{
			"server_port": {Name: "server_port", Type: "integer", Required: true},
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r
}

func mustRoot(t *testing.T, doc string) *yaml.Node {
	t.Helper()
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	return &root
}

func TestMissingRequiredInputForSubstitutedProperty(t *testing.T) {
	doc := `
topology_template:
  node_templates:
    broker:
      type: tosca.nodes.SoftwareComponent
      requirements:
        - host: vm
    vm:
      type: tosca.nodes.Compute
      capabilities:
        host:
          properties:
            num_cpus: 2
            mem_size: "4 MB"
            disk_size: "10 GB"
  substitution_mappings:
    node_type: example.QueuingSubsystem
`
	registry := mustRegistry(t)
	sink := diagnostic.NewSink(false)
	topo, err := topology.Elaborate(registry, mustRoot(t, doc), "queuing.yaml", nil, sink)
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}

	Validate(registry, topo, sink, "queuing.yaml")

	found := false
	for _, d := range sink.Diagnostics() {
		if d.Kind == diagnostic.KindMissingRequiredInput {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a MissingRequiredInputError, got %v", sink.Diagnostics())
	}
}

func TestSubstitutionPropertySatisfiedByMatchingInput(t *testing.T) {
	doc := `
topology_template:
  inputs:
    server_port:
      type: integer
  node_templates:
    vm:
      type: tosca.nodes.Compute
      capabilities:
        host:
          properties:
            num_cpus: 2
            mem_size: "4 MB"
            disk_size: "10 GB"
  substitution_mappings:
    node_type: example.QueuingSubsystem
    capabilities:
      feature: [vm, feature]
`
	registry := mustRegistry(t)
	sink := diagnostic.NewSink(false)
	topo, err := topology.Elaborate(registry, mustRoot(t, doc), "queuing_ok.yaml", map[string]any{"server_port": 5672}, sink)
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}

	Validate(registry, topo, sink, "queuing_ok.yaml")

	for _, d := range sink.Diagnostics() {
		if d.Severity == diagnostic.SeverityError {
			t.Fatalf("unexpected error diagnostic: %v", d)
		}
	}
}
