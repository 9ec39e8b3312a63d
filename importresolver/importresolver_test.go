package importresolver

import (
	"context"
	"fmt"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/toscaforge/tosca/diagnostic"
)

func parseYAML(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(s), &root); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	return &root
}

// staticLoader serves fixed document bodies keyed by ref, recording every
// (ref, base) pair it is asked to resolve.
func staticLoader(t *testing.T, docs map[string]string) (Loader, *[]string) {
	t.Helper()
	var calls []string
	loader := func(_ context.Context, ref, base string) (*yaml.Node, string, error) {
		calls = append(calls, fmt.Sprintf("%s<-%s", ref, base))
		body, ok := docs[ref]
		if !ok {
			return nil, "", fmt.Errorf("no fixture for %q", ref)
		}
		return parseYAML(t, body), ref, nil
	}
	return loader, &calls
}

func TestResolveMergesSingleImport(t *testing.T) {
	loader, _ := staticLoader(t, map[string]string{
		"types.yaml": "node_types:\n  example.Thing:\n    derived_from: tosca.nodes.Root\n",
	})
	sink := diagnostic.NewSink(false)
	r := New(loader, sink)

	root := parseYAML(t, "imports:\n  - types.yaml\n")
	ns, err := r.Resolve(context.Background(), root, "root.yaml")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ns.Imported) != 1 {
		t.Fatalf("got %d imported documents, want 1", len(ns.Imported))
	}
	if ns.Imported[0].URI != "types.yaml" {
		t.Fatalf("got URI %q, want %q", ns.Imported[0].URI, "types.yaml")
	}
}

func TestResolveLongFormCarriesNamespacePrefix(t *testing.T) {
	loader, _ := staticLoader(t, map[string]string{
		"ext/types.yaml": "node_types: {}\n",
	})
	sink := diagnostic.NewSink(false)
	r := New(loader, sink)

	root := parseYAML(t, `
imports:
  - file: ext/types.yaml
    namespace_prefix: ext
`)
	ns, err := r.Resolve(context.Background(), root, "root.yaml")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ns.Imported) != 1 || ns.Imported[0].Prefix != "ext" {
		t.Fatalf("got %+v, want one document with prefix %q", ns.Imported, "ext")
	}
}

func TestResolveTransitiveImportsAreIncluded(t *testing.T) {
	loader, _ := staticLoader(t, map[string]string{
		"a.yaml": "imports:\n  - b.yaml\nnode_types:\n  a.Thing: {}\n",
		"b.yaml": "node_types:\n  b.Thing: {}\n",
	})
	sink := diagnostic.NewSink(false)
	r := New(loader, sink)

	root := parseYAML(t, "imports:\n  - a.yaml\n")
	ns, err := r.Resolve(context.Background(), root, "root.yaml")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ns.Imported) != 2 {
		t.Fatalf("got %d imported documents, want 2 (a.yaml and b.yaml)", len(ns.Imported))
	}
}

// TestResolveCycleFirstCompletedRegistrationWins exercises the case the
// walker comments document directly: a cycle must not cause infinite
// recursion, and the document already on the stack is skipped rather than
// re-walked.
func TestResolveCycleFirstCompletedRegistrationWins(t *testing.T) {
	loader, calls := staticLoader(t, map[string]string{
		"a.yaml": "imports:\n  - b.yaml\nnode_types:\n  a.Thing: {}\n",
		"b.yaml": "imports:\n  - a.yaml\nnode_types:\n  b.Thing: {}\n",
	})
	sink := diagnostic.NewSink(false)
	r := New(loader, sink)

	root := parseYAML(t, "imports:\n  - a.yaml\n")
	ns, err := r.Resolve(context.Background(), root, "root.yaml")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ns.Imported) != 2 {
		t.Fatalf("got %d imported documents, want 2 (cycle must not duplicate or hang)", len(ns.Imported))
	}
	if len(*calls) != 2 {
		t.Fatalf("got %d loader calls, want 2 (a.yaml and b.yaml each loaded once)", len(*calls))
	}
}

// TestResolveMemoizesAlreadyCompletedImport ensures a diamond-shaped import
// graph (root imports both a.yaml and b.yaml, each of which imports
// shared.yaml) loads shared.yaml only once.
func TestResolveMemoizesAlreadyCompletedImport(t *testing.T) {
	loader, calls := staticLoader(t, map[string]string{
		"a.yaml":      "imports:\n  - shared.yaml\nnode_types:\n  a.Thing: {}\n",
		"b.yaml":      "imports:\n  - shared.yaml\nnode_types:\n  b.Thing: {}\n",
		"shared.yaml": "node_types:\n  shared.Thing: {}\n",
	})
	sink := diagnostic.NewSink(false)
	r := New(loader, sink)

	root := parseYAML(t, "imports:\n  - a.yaml\n  - b.yaml\n")
	ns, err := r.Resolve(context.Background(), root, "root.yaml")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	sharedCount := 0
	for _, d := range ns.Imported {
		if d.URI == "shared.yaml" {
			sharedCount++
		}
	}
	if sharedCount != 1 {
		t.Fatalf("got shared.yaml registered %d times, want 1", sharedCount)
	}
	loadCount := 0
	for _, c := range *calls {
		if c == "shared.yaml<-a.yaml" || c == "shared.yaml<-b.yaml" {
			loadCount++
		}
	}
	if loadCount != 1 {
		t.Fatalf("got shared.yaml fetched %d times by the loader, want 1 (memoized)", loadCount)
	}
}

func TestResolveMissingImportReportsImportError(t *testing.T) {
	loader, _ := staticLoader(t, map[string]string{})
	sink := diagnostic.NewSink(false)
	r := New(loader, sink)

	root := parseYAML(t, "imports:\n  - missing.yaml\n")
	if _, err := r.Resolve(context.Background(), root, "root.yaml"); err == nil {
		t.Fatalf("expected an error for a missing import")
	}
	found := false
	for _, d := range sink.Diagnostics() {
		if d.Kind == diagnostic.KindImportError {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a KindImportError diagnostic, got %+v", sink.Diagnostics())
	}
}

func TestResolveNoImportsIsEmptyNamespace(t *testing.T) {
	loader, calls := staticLoader(t, map[string]string{})
	sink := diagnostic.NewSink(false)
	r := New(loader, sink)

	root := parseYAML(t, "node_types:\n  example.Thing: {}\n")
	ns, err := r.Resolve(context.Background(), root, "root.yaml")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ns.Imported) != 0 {
		t.Fatalf("got %d imported documents, want 0", len(ns.Imported))
	}
	if len(*calls) != 0 {
		t.Fatalf("loader should never be called when there is no imports section")
	}
}
