// Package importresolver stitches multiple TOSCA YAML documents into one
// namespace (§4.C). It depends on nothing but a caller-supplied Loader —
// tokenization, archive extraction, and network transport are all external
// collaborators per §1's scope note.
package importresolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/toscaforge/tosca/diagnostic"
)

// Loader resolves an import reference relative to a base URI into a parsed
// YAML tree plus the reference's resolved, canonical URI. It must be
// deterministic for a given (ref, base) pair (§6). Any I/O — local file
// reads, HTTP fetches — happens inside the caller's implementation; the
// core never touches a filesystem or network socket directly.
type Loader func(ctx context.Context, ref string, base string) (tree *yaml.Node, resolvedURI string, err error)

// Entry is one parsed "imports:" list element, either a bare path string or
// the long mapping form.
type Entry struct {
	File            string
	Repository      string
	NamespaceURI    string
	NamespacePrefix string
}

// Document is one resolved YAML source: its root mapping node, the URI it
// was loaded from, and the namespace prefix (if any) every type name it
// exports should be prefixed with.
type Document struct {
	Root   *yaml.Node
	URI    string
	Prefix string
}

// Namespace is the merged result of following an entire imports graph: the
// root document plus every transitively imported document, in the
// declaration order required for deterministic, override-respecting
// downstream merging.
type Namespace struct {
	Root     *Document
	Imported []*Document
}

// Resolver walks an imports graph via a caller-supplied Loader.
type Resolver struct {
	loader Loader
	sink   *diagnostic.Sink
	logger *slog.Logger

	mu        sync.Mutex
	completed map[string]bool // (resolvedURI\x00prefix) already fully registered
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver bound to loader, reporting diagnostics to sink.
func New(loader Loader, sink *diagnostic.Sink, opts ...Option) *Resolver {
	r := &Resolver{
		loader:    loader,
		sink:      sink,
		logger:    slog.Default(),
		completed: make(map[string]bool),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve processes root's "imports:" list depth-first and returns the
// merged Namespace. A load failure is fatal (diagnostic.KindImportError,
// §7) and aborts the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, root *yaml.Node, baseURI string) (*Namespace, error) {
	ns := &Namespace{Root: &Document{Root: root, URI: baseURI}}
	if err := r.walk(ctx, root, baseURI, "", nil, ns); err != nil {
		return nil, err
	}
	return ns, nil
}

func (r *Resolver) walk(ctx context.Context, node *yaml.Node, baseURI, prefix string, stack []string, ns *Namespace) error {
	entries, err := parseImports(node)
	if err != nil {
		return r.sink.Errorf(diagnostic.KindSchemaError, diagnostic.Source{File: baseURI, Path: "imports"}, "%v", err)
	}
	if len(entries) == 0 {
		return nil
	}

	type fetched struct {
		entry Entry
		doc   *Document
		err   error
	}
	results := make([]fetched, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			ref := e.File
			resolvedURI, tree, ferr := r.load(gctx, ref, baseURI)
			results[i] = fetched{entry: e, doc: &Document{Root: tree, URI: resolvedURI, Prefix: e.NamespacePrefix}, err: ferr}
			return nil // collect errors per-entry; don't abort sibling fetches early
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, f := range results {
		if f.err != nil {
			err := fmt.Errorf("failed to load import %q: %w", f.entry.File, f.err)
			_ = r.sink.Errorf(diagnostic.KindImportError, diagnostic.Source{File: baseURI, Path: "imports"}, "%v", err)
			return err
		}
		key := f.doc.URI + "\x00" + f.doc.Prefix
		if r.isCompleted(key) {
			r.logger.Debug("importresolver: skip already-loaded import", "uri", f.doc.URI, "prefix", f.doc.Prefix)
			continue
		}
		if f.doc.URI == baseURI || contains(stack, f.doc.URI) {
			r.logger.Debug("importresolver: cycle detected, first completed registration wins", "uri", f.doc.URI)
			continue
		}
		ns.Imported = append(ns.Imported, f.doc)
		if err := r.walk(ctx, f.doc.Root, f.doc.URI, f.doc.Prefix, append(stack, baseURI), ns); err != nil {
			return err
		}
		r.markCompleted(key)
	}
	return nil
}

func (r *Resolver) load(ctx context.Context, ref, base string) (string, *yaml.Node, error) {
	tree, resolvedURI, err := r.loader(ctx, ref, base)
	if err != nil {
		return "", nil, err
	}
	return resolvedURI, tree, nil
}

func (r *Resolver) isCompleted(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed[key]
}

func (r *Resolver) markCompleted(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[key] = true
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// parseImports extracts the "imports:" list from a document's root mapping
// node. Each element is either a scalar path or a mapping with file/
// repository/namespace_uri/namespace_prefix keys.
func parseImports(root *yaml.Node) ([]Entry, error) {
	m := mappingValue(root, "imports")
	if m == nil {
		return nil, nil
	}
	if m.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("imports: expected a sequence, got %v", m.Kind)
	}
	out := make([]Entry, 0, len(m.Content))
	for _, item := range m.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, Entry{File: item.Value})
		case yaml.MappingNode:
			e := Entry{}
			for i := 0; i+1 < len(item.Content); i += 2 {
				k, v := item.Content[i].Value, item.Content[i+1].Value
				switch k {
				case "file":
					e.File = v
				case "repository":
					e.Repository = v
				case "namespace_uri":
					e.NamespaceURI = v
				case "namespace_prefix":
					e.NamespacePrefix = v
				}
			}
			out = append(out, e)
		default:
			return nil, fmt.Errorf("imports: unsupported entry kind %v", item.Kind)
		}
	}
	return out, nil
}

// mappingValue returns the value node for key within a top-level mapping
// document/mapping node, or nil if absent.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil {
		return nil
	}
	n := node
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// MappingValue exposes mappingValue for downstream packages (the type
// registrar and elaborator both need to pull named sections out of a
// Document's root node).
func MappingValue(node *yaml.Node, key string) *yaml.Node {
	return mappingValue(node, key)
}
