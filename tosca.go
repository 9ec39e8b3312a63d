// Package tosca is the top-level entry point of the parser core: it wires
// import resolution, type registration/flattening, template elaboration,
// and substitution-mapping validation into the single-call pipeline
// described by §4.G's state machine, and hands back a validated Topology
// plus the accumulated diagnostics.
package tosca

import (
	"context"

	"gopkg.in/yaml.v3"

	"github.com/toscaforge/tosca/diagnostic"
	"github.com/toscaforge/tosca/importresolver"
	"github.com/toscaforge/tosca/substitution"
	"github.com/toscaforge/tosca/topology"
	"github.com/toscaforge/tosca/typesystem"
)

// Stage names one point in the §4.G template lifecycle state machine.
type Stage string

const (
	StageEmpty              Stage = "EMPTY"
	StageImportsResolved    Stage = "IMPORTS_RESOLVED"
	StageTypesRegistered    Stage = "TYPES_REGISTERED"
	StageTypesFlattened     Stage = "TYPES_FLATTENED"
	StageTopologyElaborated Stage = "TOPOLOGY_ELABORATED"
	StageFunctionsBound     Stage = "FUNCTIONS_BOUND"
	StageValidated          Stage = "VALIDATED"
	StageFailed             Stage = "FAILED"
)

// Result is the outcome of Parse: the reached Stage, the elaborated
// Topology (nil if elaboration never ran), and every diagnostic collected
// along the way.
type Result struct {
	Stage       Stage
	Topology    *topology.Topology
	Registry    *typesystem.Registry
	Diagnostics diagnostic.Diagnostics
}

// HasErrors reports whether any diagnostic in the result is an error.
func (r *Result) HasErrors() bool { return r.Diagnostics.HasErrors() }

// Option configures a Parse invocation.
type Option func(*options)

type options struct {
	strict         bool
	inputs         map[string]any
	sink           *diagnostic.Sink
	profileVersion string
}

// WithStrictMode makes the diagnostic sink strict: import resolution and
// type-section registration stop at their first error diagnostic. Template
// elaboration and substitution checks do not stop early in strict mode; they
// still run to completion and report every diagnostic they find.
func WithStrictMode() Option {
	return func(o *options) { o.strict = true }
}

// WithInputs supplies the caller's input_name -> value bindings.
func WithInputs(values map[string]any) Option {
	return func(o *options) { o.inputs = values }
}

// Parse runs the full pipeline over root (a parsed YAML document whose
// top-level mapping carries tosca_definitions_version, imports, node_types,
// and topology_template) starting at baseURI, using loader to resolve any
// imports (§4.C), and returns the reached stage, the elaborated topology
// (if reached), and every diagnostic collected.
func Parse(ctx context.Context, root *yaml.Node, baseURI string, loader importresolver.Loader, opts ...Option) *Result {
	o := &options{sink: nil}
	for _, opt := range opts {
		opt(o)
	}
	sink := diagnostic.NewSink(o.strict)
	o.sink = sink

	result := &Result{Stage: StageEmpty}

	docRoot := unwrapDocument(root)
	version := scalarField(docRoot, "tosca_definitions_version")
	if version == "" {
		result.Stage = StageFailed
		_ = sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: baseURI}, "document has no tosca_definitions_version")
		result.Diagnostics = sink.Diagnostics()
		return result
	}

	resolver := importresolver.New(loader, sink)
	ns, err := resolver.Resolve(ctx, root, baseURI)
	if err != nil {
		result.Stage = StageFailed
		result.Diagnostics = sink.Diagnostics()
		return result
	}
	result.Stage = StageImportsResolved

	registry, err := typesystem.NewRegistry(version)
	if err != nil {
		result.Stage = StageFailed
		_ = sink.Errorf(diagnostic.KindUnsupportedVersion, diagnostic.Source{File: baseURI}, "%v", err)
		result.Diagnostics = sink.Diagnostics()
		return result
	}
	result.Registry = registry

	docs := append([]*importresolver.Document{ns.Root}, ns.Imported...)
	for _, doc := range docs {
		docRoot := unwrapDocument(doc.Root)
		for section, kind := range typesystem.SectionKind {
			node := importresolver.MappingValue(docRoot, section)
			if node == nil {
				continue
			}
			if err := typesystem.RegisterSection(registry, kind, node, doc.Prefix, doc.URI, sink); err != nil {
				if sink.HasErrors() && o.strict {
					result.Stage = StageFailed
					result.Diagnostics = sink.Diagnostics()
					return result
				}
			}
		}
	}
	result.Stage = StageTypesRegistered

	if _, err := registry.ResolveDerivations(sink); err != nil {
		result.Stage = StageFailed
		result.Diagnostics = sink.Diagnostics()
		return result
	}
	result.Stage = StageTypesFlattened

	topo, err := topology.Elaborate(registry, docRoot, baseURI, o.inputs, sink)
	if err != nil || topo == nil {
		result.Stage = StageFailed
		result.Diagnostics = sink.Diagnostics()
		return result
	}
	result.Topology = topo
	result.Stage = StageTopologyElaborated

	substitution.Validate(registry, topo, sink, baseURI)
	result.Stage = StageFunctionsBound

	result.Diagnostics = sink.Diagnostics()
	if result.Diagnostics.HasErrors() {
		result.Stage = StageFailed
	} else {
		result.Stage = StageValidated
	}
	return result
}

func unwrapDocument(n *yaml.Node) *yaml.Node {
	if n != nil && n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

func scalarField(mapping *yaml.Node, key string) string {
	v := importresolver.MappingValue(mapping, key)
	if v == nil {
		return ""
	}
	return v.Value
}
