// Package tplfunction implements the TOSCA intrinsic function evaluator
// (§4.E): get_input, get_property, get_attribute, get_operation_output,
// get_artifact, concat, and token, each resolved against a Context the
// elaborator (package topology) supplies. tplfunction has no dependency on
// topology's node-template types; it only knows the tagged-variant ValueExpr
// shape and the narrow Context interface below, so topology depends on
// tplfunction and not the reverse.
package tplfunction

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExprKind tags a ValueExpr's variant (§3 "duck-typed value expressions").
type ExprKind int

const (
	KindLiteral ExprKind = iota
	KindFunctionCall
	KindReference
)

// ValueExpr is the tagged-variant parse tree for any property/attribute/
// input/output value: a literal, an intrinsic function call, or a bare
// entity+path reference. The [entity, path...] argument list of
// get_property/get_attribute/get_artifact/get_operation_output is held in a
// FunctionCall's Reference field rather than as nested Args; DecodeValueExpr
// never produces a KindReference expression.
type ValueExpr struct {
	Kind ExprKind

	Literal any

	FunctionName string
	Args         []ValueExpr

	Reference []string
}

// Entity path roots recognized by get_property/get_attribute (§4.E).
const (
	EntitySelf   = "SELF"
	EntityHost   = "HOST"
	EntitySource = "SOURCE"
	EntityTarget = "TARGET"
)

var pathFunctions = map[string]bool{
	"get_property":        true,
	"get_attribute":       true,
	"get_artifact":        true,
	"get_operation_output": true,
}

// DecodeValueExpr parses a raw YAML node into a ValueExpr. A single-key
// mapping whose key names a known intrinsic function is parsed as a
// FunctionCall; anything else decodes as a Literal.
func DecodeValueExpr(node *yaml.Node) (ValueExpr, error) {
	if node == nil {
		return ValueExpr{Kind: KindLiteral, Literal: nil}, nil
	}
	if node.Kind == yaml.MappingNode && len(node.Content) == 2 {
		fn := node.Content[0].Value
		if isIntrinsic(fn) {
			return decodeFunctionCall(fn, node.Content[1])
		}
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return ValueExpr{}, err
	}
	return ValueExpr{Kind: KindLiteral, Literal: v}, nil
}

func isIntrinsic(name string) bool {
	switch name {
	case "get_input", "get_property", "get_attribute", "get_operation_output", "get_artifact", "concat", "token":
		return true
	}
	return false
}

func decodeFunctionCall(name string, argsNode *yaml.Node) (ValueExpr, error) {
	if pathFunctions[name] {
		var path []string
		if err := argsNode.Decode(&path); err != nil {
			return ValueExpr{}, fmt.Errorf("tplfunction: %s: expected a list of strings, got %v: %w", name, argsNode.Kind, err)
		}
		if len(path) == 0 {
			return ValueExpr{}, fmt.Errorf("tplfunction: %s: requires at least an entity argument", name)
		}
		return ValueExpr{Kind: KindFunctionCall, FunctionName: name, Reference: path}, nil
	}

	if name == "get_input" {
		if argsNode.Kind == yaml.ScalarNode {
			return ValueExpr{Kind: KindFunctionCall, FunctionName: name, Args: []ValueExpr{{Kind: KindLiteral, Literal: argsNode.Value}}}, nil
		}
	}

	if argsNode.Kind != yaml.SequenceNode {
		arg, err := DecodeValueExpr(argsNode)
		if err != nil {
			return ValueExpr{}, err
		}
		return ValueExpr{Kind: KindFunctionCall, FunctionName: name, Args: []ValueExpr{arg}}, nil
	}
	args := make([]ValueExpr, 0, len(argsNode.Content))
	for _, item := range argsNode.Content {
		arg, err := DecodeValueExpr(item)
		if err != nil {
			return ValueExpr{}, err
		}
		args = append(args, arg)
	}
	return ValueExpr{Kind: KindFunctionCall, FunctionName: name, Args: args}, nil
}

// Unknown is the static-analysis placeholder get_attribute resolves to: its
// runtime value is not known until deployment, but it still carries a
// declared type so downstream constraint checks can type-check against it
// (§4.E "returns a placeholder Unknown value that still type-checks").
type Unknown struct {
	Type string
}

func (u Unknown) String() string { return fmt.Sprintf("<unknown:%s>", u.Type) }

// Context supplies everything the evaluator needs to resolve a function
// call against one elaborated topology, rooted at a specific node template
// (the "current" node a ValueExpr was found on).
type Context interface {
	// Input returns the bound (or default) value of a template input.
	Input(name string) (any, bool)

	// Property resolves [entity, path...] to a property or nested value.
	// entity is one of SELF/HOST/SOURCE/TARGET/<node_name>.
	Property(entity string, path []string) (any, error)

	// Attribute resolves the same shape as Property but against attributes;
	// implementations should return an Unknown placeholder plus its declared
	// type rather than erroring when the value cannot be known statically.
	Attribute(entity string, path []string) (any, error)

	// OperationOutput resolves get_operation_output's four-element form.
	OperationOutput(node, interfaceName, operation, output string) (any, error)

	// Artifact resolves an artifact name on entity to its file URI.
	Artifact(entity, artifactName string) (any, error)
}

// Eval evaluates expr against ctx, recursively resolving nested function
// calls (concat's and token's operands in particular).
func Eval(expr ValueExpr, ctx Context) (any, error) {
	switch expr.Kind {
	case KindLiteral:
		return expr.Literal, nil
	case KindReference:
		return nil, fmt.Errorf("tplfunction: bare reference %v cannot be evaluated outside a function call", expr.Reference)
	case KindFunctionCall:
		return evalCall(expr, ctx)
	default:
		return nil, fmt.Errorf("tplfunction: unknown ValueExpr kind %d", expr.Kind)
	}
}

func evalCall(expr ValueExpr, ctx Context) (any, error) {
	switch expr.FunctionName {
	case "get_input":
		if len(expr.Args) != 1 {
			return nil, fmt.Errorf("tplfunction: get_input requires exactly one argument")
		}
		nameVal, err := Eval(expr.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		name, ok := nameVal.(string)
		if !ok {
			return nil, fmt.Errorf("tplfunction: get_input: argument must be a string")
		}
		v, ok := ctx.Input(name)
		if !ok {
			return nil, fmt.Errorf("tplfunction: get_input: no such input %q", name)
		}
		return v, nil

	case "get_property":
		if len(expr.Reference) < 2 {
			return nil, fmt.Errorf("tplfunction: get_property requires [entity, property, ...]")
		}
		v, err := ctx.Property(expr.Reference[0], expr.Reference[1:])
		if err != nil {
			return nil, fmt.Errorf("tplfunction: get_property %v: %w", expr.Reference, err)
		}
		return v, nil

	case "get_attribute":
		if len(expr.Reference) < 2 {
			return nil, fmt.Errorf("tplfunction: get_attribute requires [entity, attribute, ...]")
		}
		v, err := ctx.Attribute(expr.Reference[0], expr.Reference[1:])
		if err != nil {
			return nil, fmt.Errorf("tplfunction: get_attribute %v: %w", expr.Reference, err)
		}
		return v, nil

	case "get_operation_output":
		if len(expr.Reference) != 4 {
			return nil, fmt.Errorf("tplfunction: get_operation_output requires [node, interface, operation, output]")
		}
		v, err := ctx.OperationOutput(expr.Reference[0], expr.Reference[1], expr.Reference[2], expr.Reference[3])
		if err != nil {
			return nil, fmt.Errorf("tplfunction: get_operation_output %v: %w", expr.Reference, err)
		}
		return v, nil

	case "get_artifact":
		if len(expr.Reference) < 2 {
			return nil, fmt.Errorf("tplfunction: get_artifact requires [entity, artifact_name, ...]")
		}
		v, err := ctx.Artifact(expr.Reference[0], expr.Reference[1])
		if err != nil {
			return nil, fmt.Errorf("tplfunction: get_artifact %v: %w", expr.Reference, err)
		}
		return v, nil

	case "concat":
		var sb strings.Builder
		for i, arg := range expr.Args {
			v, err := Eval(arg, ctx)
			if err != nil {
				return nil, fmt.Errorf("tplfunction: concat: argument %d: %w", i, err)
			}
			sb.WriteString(stringify(v))
		}
		return sb.String(), nil

	case "token":
		if len(expr.Args) != 3 {
			return nil, fmt.Errorf("tplfunction: token requires [string, separator, index]")
		}
		strVal, err := Eval(expr.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		sepVal, err := Eval(expr.Args[1], ctx)
		if err != nil {
			return nil, err
		}
		idxVal, err := Eval(expr.Args[2], ctx)
		if err != nil {
			return nil, err
		}
		s, sep := stringify(strVal), stringify(sepVal)
		idx, err := toInt(idxVal)
		if err != nil {
			return nil, fmt.Errorf("tplfunction: token: index: %w", err)
		}
		parts := strings.Split(s, sep)
		if idx < 0 || idx >= len(parts) {
			return nil, fmt.Errorf("tplfunction: token: index %d out of range (0..%d)", idx, len(parts)-1)
		}
		return parts[idx], nil

	default:
		return nil, fmt.Errorf("tplfunction: unknown function %q", expr.FunctionName)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}
