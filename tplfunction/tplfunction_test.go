package tplfunction

import (
	"fmt"
	"testing"

	"gopkg.in/yaml.v3"
)

type fakeContext struct {
	inputs     map[string]any
	properties map[string]map[string]any // entity -> path-joined -> value
}

func (f *fakeContext) Input(name string) (any, bool) {
	v, ok := f.inputs[name]
	return v, ok
}

func (f *fakeContext) Property(entity string, path []string) (any, error) {
	m, ok := f.properties[entity]
	if !ok {
		return nil, fmt.Errorf("no such entity %q", entity)
	}
	v, ok := m[joinPath(path)]
	if !ok {
		return nil, fmt.Errorf("no such property %v on %q", path, entity)
	}
	return v, nil
}

func (f *fakeContext) Attribute(entity string, path []string) (any, error) {
	return Unknown{Type: "string"}, nil
}

func (f *fakeContext) OperationOutput(node, iface, op, output string) (any, error) {
	return Unknown{Type: "string"}, nil
}

func (f *fakeContext) Artifact(entity, name string) (any, error) {
	return "file:///artifacts/" + name, nil
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

func decode(t *testing.T, doc string) ValueExpr {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &node); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	expr, err := DecodeValueExpr(node.Content[0])
	if err != nil {
		t.Fatalf("DecodeValueExpr: %v", err)
	}
	return expr
}

func TestDecodeLiteral(t *testing.T) {
	expr := decode(t, `42`)
	if expr.Kind != KindLiteral {
		t.Fatalf("expected literal, got %v", expr.Kind)
	}
}

func TestGetInput(t *testing.T) {
	expr := decode(t, `{ get_input: region }`)
	ctx := &fakeContext{inputs: map[string]any{"region": "us-east-1"}}
	v, err := Eval(expr, ctx)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != "us-east-1" {
		t.Fatalf("got %v", v)
	}
}

func TestGetPropertyHostChain(t *testing.T) {
	expr := decode(t, `{ get_property: [SELF, host, host, num_cpus] }`)
	ctx := &fakeContext{properties: map[string]map[string]any{
		"SELF": {"host.host.num_cpus": 4},
	}}
	v, err := Eval(expr, ctx)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != 4 {
		t.Fatalf("got %v", v)
	}
}

func TestConcat(t *testing.T) {
	expr := decode(t, `{ concat: [ "prefix-", { get_input: suffix } ] }`)
	ctx := &fakeContext{inputs: map[string]any{"suffix": "abc"}}
	v, err := Eval(expr, ctx)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != "prefix-abc" {
		t.Fatalf("got %q", v)
	}
}

func TestTokenOutOfRange(t *testing.T) {
	expr := decode(t, `{ token: [ "a,b,c", ",", 5 ] }`)
	ctx := &fakeContext{}
	if _, err := Eval(expr, ctx); err == nil {
		t.Fatalf("expected an out-of-range error")
	}
}

func TestTokenIndex(t *testing.T) {
	expr := decode(t, `{ token: [ "a,b,c", ",", 1 ] }`)
	ctx := &fakeContext{}
	v, err := Eval(expr, ctx)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != "b" {
		t.Fatalf("got %q", v)
	}
}

func TestGetArtifact(t *testing.T) {
	expr := decode(t, `{ get_artifact: [SELF, install_script] }`)
	ctx := &fakeContext{}
	v, err := Eval(expr, ctx)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != "file:///artifacts/install_script" {
		t.Fatalf("got %v", v)
	}
}

func TestGetAttributeUnknownPlaceholder(t *testing.T) {
	expr := decode(t, `{ get_attribute: [SELF, state] }`)
	ctx := &fakeContext{}
	v, err := Eval(expr, ctx)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if _, ok := v.(Unknown); !ok {
		t.Fatalf("expected Unknown placeholder, got %T", v)
	}
}
