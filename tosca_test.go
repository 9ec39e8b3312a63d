package tosca

import (
	"context"
	"testing"

	"gopkg.in/yaml.v3"

	_ "github.com/toscaforge/tosca/normative"
)

func TestParseSingleComputeNoImports(t *testing.T) {
	doc := `
tosca_definitions_version: tosca_simple_yaml_1_3
topology_template:
  node_templates:
    vm:
      type: tosca.nodes.Compute
      capabilities:
        host:
          properties:
            num_cpus: 2
            mem_size: "4 MB"
            disk_size: "10 GB"
`
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}

	loader := func(ctx context.Context, ref, base string) (*yaml.Node, string, error) {
		t.Fatalf("unexpected import of %q", ref)
		return nil, "", nil
	}

	result := Parse(context.Background(), &root, "inline.yaml", loader)
	if result.Stage != StageValidated {
		t.Fatalf("got stage %v, diagnostics %v", result.Stage, result.Diagnostics)
	}
	if result.HasErrors() {
		t.Fatalf("unexpected errors: %v", result.Diagnostics)
	}
	if _, ok := result.Topology.NodeTemplates["vm"]; !ok {
		t.Fatalf("expected node template %q in elaborated topology", "vm")
	}
}

func TestParseUnsupportedVersion(t *testing.T) {
	doc := `
tosca_definitions_version: tosca_simple_yaml_9_9
topology_template: {}
`
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	loader := func(ctx context.Context, ref, base string) (*yaml.Node, string, error) {
		return nil, "", nil
	}
	result := Parse(context.Background(), &root, "bad_version.yaml", loader)
	if result.Stage != StageFailed {
		t.Fatalf("got stage %v, want %v", result.Stage, StageFailed)
	}
}
