package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// loadDocument reads and parses the YAML service template at path.
func loadDocument(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &root, nil
}

// fileLoader resolves an "imports:" entry relative to its referencing
// document's directory, the local-filesystem collaborator the core expects
// callers to supply (§6 "caller-provided opener").
func fileLoader(ctx context.Context, ref string, base string) (*yaml.Node, string, error) {
	dir := filepath.Dir(base)
	resolved := ref
	if !filepath.IsAbs(ref) {
		resolved = filepath.Join(dir, ref)
	}
	tree, err := loadDocument(resolved)
	if err != nil {
		return nil, "", err
	}
	return tree, resolved, nil
}
