package topology

import (
	"fmt"

	"github.com/toscaforge/tosca/tplfunction"
)

// evalContext binds tplfunction.Context to one "current" node (and, for
// relationship-scoped expressions, a source/target pair) within a Topology.
type evalContext struct {
	topo   *Topology
	self   string
	source string
	target string
}

// ContextForNode returns the evaluation context for a ValueExpr found
// directly on a node template (SELF resolves to nodeName; SOURCE/TARGET are
// unavailable).
func (t *Topology) ContextForNode(nodeName string) tplfunction.Context {
	return &evalContext{topo: t, self: nodeName}
}

// ContextForRelationship returns the evaluation context for a ValueExpr
// found on a relationship assignment, where SELF/SOURCE both resolve to the
// relationship's source node and TARGET resolves to its target node.
func (t *Topology) ContextForRelationship(rel *RelationshipTemplate) tplfunction.Context {
	return &evalContext{topo: t, self: rel.SourceNode, source: rel.SourceNode, target: rel.TargetNode}
}

func (c *evalContext) Input(name string) (any, bool) {
	v, ok := c.topo.InputValues[name]
	return v, ok
}

func (c *evalContext) Property(entity string, path []string) (any, error) {
	nodeName, rest, err := c.resolveEntity(entity, path)
	if err != nil {
		return nil, err
	}
	return traverseProperty(c.topo, nodeName, rest)
}

func (c *evalContext) Attribute(entity string, path []string) (any, error) {
	nodeName, rest, err := c.resolveEntity(entity, path)
	if err != nil {
		return nil, err
	}
	nt, ok := c.topo.NodeTemplates[nodeName]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", nodeName)
	}
	typ := ""
	if len(rest) > 0 {
		if attr, ok := nt.Flattened.Attributes[rest[0]]; ok {
			typ = string(attr.Type)
		}
	}
	return tplfunction.Unknown{Type: typ}, nil
}

func (c *evalContext) OperationOutput(node, interfaceName, operation, output string) (any, error) {
	nt, ok := c.topo.NodeTemplates[node]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", node)
	}
	iface, ok := nt.Flattened.Interfaces[interfaceName]
	if !ok {
		return nil, fmt.Errorf("node %q has no interface %q", node, interfaceName)
	}
	opDef, ok := iface.Operations[operation]
	if !ok {
		return nil, fmt.Errorf("interface %q on node %q has no operation %q", interfaceName, node, operation)
	}
	outDef, ok := opDef.Outputs[output]
	if !ok {
		return nil, fmt.Errorf("operation %q has no output %q", operation, output)
	}
	return tplfunction.Unknown{Type: string(outDef.Type)}, nil
}

func (c *evalContext) Artifact(entity, artifactName string) (any, error) {
	nodeName, _, err := c.resolveEntity(entity, nil)
	if err != nil {
		return nil, err
	}
	nt, ok := c.topo.NodeTemplates[nodeName]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", nodeName)
	}
	art, ok := nt.Artifacts[artifactName]
	if !ok {
		return nil, fmt.Errorf("node %q has no artifact %q", nodeName, artifactName)
	}
	return art.File, nil
}

// resolveEntity maps an entity keyword (SELF/HOST/SOURCE/TARGET/node_name)
// to a concrete node name and the remaining path to traverse from it.
func (c *evalContext) resolveEntity(entity string, path []string) (string, []string, error) {
	switch entity {
	case tplfunction.EntitySelf:
		if c.self == "" {
			return "", nil, fmt.Errorf("SELF is not available in this context")
		}
		return c.self, path, nil
	case tplfunction.EntitySource:
		if c.source == "" {
			return "", nil, fmt.Errorf("SOURCE is only available when evaluating a relationship template")
		}
		return c.source, path, nil
	case tplfunction.EntityTarget:
		if c.target == "" {
			return "", nil, fmt.Errorf("TARGET is only available when evaluating a relationship template")
		}
		return c.target, path, nil
	case tplfunction.EntityHost:
		return c.hostOf(c.self), path, nil
	default:
		if _, ok := c.topo.NodeTemplates[entity]; ok {
			return entity, path, nil
		}
		return "", nil, fmt.Errorf("unknown entity %q", entity)
	}
}

// hostOf follows the "host" requirement chain from name until it reaches a
// node deriving from tosca.nodes.Compute, or until the chain runs out
// (§4.E "HOST traverses the host requirement chain until a
// tosca.nodes.Compute-derived node").
func (c *evalContext) hostOf(name string) string {
	cur := name
	seen := map[string]bool{}
	for !seen[cur] {
		seen[cur] = true
		nt, ok := c.topo.NodeTemplates[cur]
		if !ok {
			return cur
		}
		if c.topo.registry.DerivesFrom(nt.Type, "tosca.nodes.Compute") {
			return cur
		}
		req := nt.requirementByName("host")
		if req == nil || req.TargetNodeName == "" {
			return cur
		}
		cur = req.TargetNodeName
	}
	return cur
}

// traverseProperty walks path starting at nodeName's property/capability/
// requirement namespace (§4.E "a property name, then nested keys into maps
// or data-types, or capability/requirement names").
//
// Requirement names take priority over capability names for non-terminal
// segments: TOSCA conventionally names both the "container" capability and
// the requirement that binds to it "host" (tosca.nodes.Compute's capability
// and tosca.nodes.SoftwareComponent's requirement), so a path like
// [host, host, num_cpus] must hop through the requirement chain rather than
// dead-ending on the intermediate node's own same-named capability (§8
// scenario 4).
func traverseProperty(topo *Topology, nodeName string, path []string) (any, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty property path")
	}
	nt, ok := topo.NodeTemplates[nodeName]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", nodeName)
	}
	head, rest := path[0], path[1:]

	if expr, ok := nt.Properties[head]; ok {
		v, err := tplfunction.Eval(expr, topo.ContextForNode(nodeName))
		if err != nil {
			return nil, err
		}
		if len(rest) == 0 {
			return v, nil
		}
		return traverseValue(v, rest)
	}

	if len(rest) == 0 {
		// Terminal segment: search every capability assignment (and, absent
		// an assignment, the flattened capability definition's default) for
		// a property of this name before giving up.
		for _, ca := range nt.Capabilities {
			if expr, ok := ca.Properties[head]; ok {
				return tplfunction.Eval(expr, topo.ContextForNode(nodeName))
			}
		}
		for _, capDef := range nt.Flattened.Capabilities {
			if def, ok := capDef.Properties[head]; ok && def.Default != nil {
				return def.Default, nil
			}
		}
		return nil, fmt.Errorf("path segment %q not found on node %q", head, nodeName)
	}

	if req := nt.requirementByName(head); req != nil {
		if req.TargetNodeName == "" {
			return nil, fmt.Errorf("requirement %q on %q is unresolved", head, nodeName)
		}
		return traverseProperty(topo, req.TargetNodeName, rest)
	}

	if ca, ok := nt.Capabilities[head]; ok {
		if expr, ok := ca.Properties[rest[0]]; ok {
			v, err := tplfunction.Eval(expr, topo.ContextForNode(nodeName))
			if err != nil {
				return nil, err
			}
			if len(rest) == 1 {
				return v, nil
			}
			return traverseValue(v, rest[1:])
		}
		if capDef, ok := nt.Flattened.Capabilities[head]; ok {
			if def, ok := capDef.Properties[rest[0]]; ok && def.Default != nil {
				if len(rest) == 1 {
					return def.Default, nil
				}
				return traverseValue(def.Default, rest[1:])
			}
		}
		return nil, fmt.Errorf("capability %q has no property %q", head, rest[0])
	}

	return nil, fmt.Errorf("path segment %q not found on node %q", head, nodeName)
}

func traverseValue(v any, path []string) (any, error) {
	cur := v
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot traverse into non-map value at %q", key)
		}
		val, ok := m[key]
		if !ok {
			return nil, fmt.Errorf("key %q not found", key)
		}
		cur = val
	}
	return cur, nil
}
