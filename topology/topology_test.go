package topology

import (
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/toscaforge/tosca/diagnostic"
	_ "github.com/toscaforge/tosca/normative"
	"github.com/toscaforge/tosca/typesystem"
)

func mustRegistry(t *testing.T) *typesystem.Registry {
	t.Helper()
	r, err := typesystem.NewRegistry("tosca_simple_yaml_1_3")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
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

func TestSingleCompute(t *testing.T) {
	doc := `
topology_template:
  inputs:
    cpus:
      type: integer
      constraints:
        - valid_values: [1, 2, 4, 8]
  node_templates:
    vm:
      type: tosca.nodes.Compute
      capabilities:
        host:
          properties:
            num_cpus: { get_input: cpus }
            mem_size: "4 MB"
            disk_size: "10 GB"
`
	sink := diagnostic.NewSink(false)
	topo, err := Elaborate(mustRegistry(t), mustRoot(t, doc), "single_compute.yaml", map[string]any{"cpus": 2}, sink)
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	if sink.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", sink.Diagnostics())
	}
	vm, ok := topo.NodeTemplates["vm"]
	if !ok {
		t.Fatalf("expected node template %q", "vm")
	}
	ctx := topo.ContextForNode("vm")
	v, err := ctx.Property("SELF", []string{"num_cpus"})
	if err != nil {
		t.Fatalf("Property: %v", err)
	}
	if v != 2 {
		t.Fatalf("got num_cpus=%v, want 2", v)
	}
	_ = vm
}

func TestConstraintViolationOnInput(t *testing.T) {
	doc := `
topology_template:
  inputs:
    cpus:
      type: integer
      constraints:
        - valid_values: [1, 2, 4, 8]
  node_templates:
    vm:
      type: tosca.nodes.Compute
`
	sink := diagnostic.NewSink(false)
	if _, err := Elaborate(mustRegistry(t), mustRoot(t, doc), "bad_input.yaml", map[string]any{"cpus": 3}, sink); err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	found := false
	for _, d := range sink.Diagnostics() {
		if d.Kind == diagnostic.KindConstraintViolation {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a ConstraintViolation diagnostic, got %v", sink.Diagnostics())
	}
}

func TestRequirementChainHostProperty(t *testing.T) {
	doc := `
topology_template:
  node_templates:
    vm:
      type: tosca.nodes.Compute
      capabilities:
        host:
          properties:
            num_cpus: 4
    dbms:
      type: tosca.nodes.DBMS
      requirements:
        - host: vm
    db:
      type: tosca.nodes.Database
      properties:
        name: app
      requirements:
        - host: dbms
`
	sink := diagnostic.NewSink(false)
	topo, err := Elaborate(mustRegistry(t), mustRoot(t, doc), "chain.yaml", nil, sink)
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	if sink.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", sink.Diagnostics())
	}
	ctx := topo.ContextForNode("db")
	v, err := ctx.Property("SELF", []string{"host", "host", "num_cpus"})
	if err != nil {
		t.Fatalf("Property: %v", err)
	}
	if v != 4 {
		t.Fatalf("got %v, want 4", v)
	}
}

func TestNodeFilterBinding(t *testing.T) {
	doc := `
topology_template:
  node_templates:
    small:
      type: tosca.nodes.Compute
      capabilities:
        host:
          properties:
            num_cpus: 8
    big:
      type: tosca.nodes.Compute
      capabilities:
        host:
          properties:
            num_cpus: 4
    dbms:
      type: tosca.nodes.DBMS
      requirements:
        - host:
            node_filter:
              capabilities:
                - host:
                    properties:
                      - num_cpus:
                          - in_range: [1, 4]
`
	sink := diagnostic.NewSink(false)
	topo, err := Elaborate(mustRegistry(t), mustRoot(t, doc), "filter.yaml", nil, sink)
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	if sink.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", sink.Diagnostics())
	}
	dbms := topo.NodeTemplates["dbms"]
	req := dbms.requirementByName("host")
	if req == nil || req.TargetNodeName != "big" {
		t.Fatalf("expected dbms.host to bind to %q, got %+v", "big", req)
	}
}

func TestDeprecatedAlias(t *testing.T) {
	doc := `
topology_template:
  node_templates:
    vol:
      type: tosca.nodes.BlockStorage
      properties:
        size: "10 GB"
`
	sink := diagnostic.NewSink(false)
	_, err := Elaborate(mustRegistry(t), mustRoot(t, doc), "alias.yaml", nil, sink)
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
}

func TestCopyDirectiveMergesBase(t *testing.T) {
	doc := `
topology_template:
  node_templates:
    vm1:
      type: tosca.nodes.Compute
      capabilities:
        host:
          properties:
            num_cpus: 2
            mem_size: "4 MB"
    vm2:
      type: tosca.nodes.Compute
      copy: vm1
      capabilities:
        host:
          properties:
            num_cpus: 8
`
	sink := diagnostic.NewSink(false)
	topo, err := Elaborate(mustRegistry(t), mustRoot(t, doc), "copy.yaml", nil, sink)
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	if sink.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", sink.Diagnostics())
	}
	v, err := topo.ContextForNode("vm2").Property("SELF", []string{"num_cpus"})
	if err != nil {
		t.Fatalf("Property: %v", err)
	}
	if v != 8 {
		t.Fatalf("override: got %v, want 8", v)
	}
	v, err = topo.ContextForNode("vm2").Property("SELF", []string{"mem_size"})
	if err != nil {
		t.Fatalf("Property: %v", err)
	}
	if v != "4 MB" {
		t.Fatalf("inherited: got %v, want %q", v, "4 MB")
	}
}

func TestAmbiguousTargetError(t *testing.T) {
	doc := `
topology_template:
  node_templates:
    vm1:
      type: tosca.nodes.Compute
    vm2:
      type: tosca.nodes.Compute
    dbms:
      type: tosca.nodes.DBMS
      requirements:
        - host: {}
`
	sink := diagnostic.NewSink(false)
	if _, err := Elaborate(mustRegistry(t), mustRoot(t, doc), "ambiguous.yaml", nil, sink); err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	found := false
	for _, d := range sink.Diagnostics() {
		if d.Kind == diagnostic.KindAmbiguousTarget {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected AmbiguousTargetError, got %v", sink.Diagnostics())
	}
}
