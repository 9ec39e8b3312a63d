package main

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/toscaforge/tosca"
	_ "github.com/toscaforge/tosca/normative"
)

func runDiff(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: toscactl diff [options] <old-template.yaml> <new-template.yaml>\n\nCompare two service templates and report elaborated differences.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return fmt.Errorf("two template files are required: <old-template.yaml> <new-template.yaml>")
	}

	oldPath, newPath := fs.Arg(0), fs.Arg(1)
	oldResult, err := elaborateFile(oldPath)
	if err != nil {
		return fmt.Errorf("elaborate %q: %w", oldPath, err)
	}
	newResult, err := elaborateFile(newPath)
	if err != nil {
		return fmt.Errorf("elaborate %q: %w", newPath, err)
	}

	added, removed, changedType := diffNodeTemplates(oldResult, newResult)

	if len(added) == 0 && len(removed) == 0 && len(changedType) == 0 {
		fmt.Println("no node template differences")
		return nil
	}
	for _, name := range added {
		fmt.Printf("+ %s\n", name)
	}
	for _, name := range removed {
		fmt.Printf("- %s\n", name)
	}
	for _, name := range changedType {
		fmt.Printf("~ %s: type %s -> %s\n", name, oldResult.Topology.NodeTemplates[name].Type, newResult.Topology.NodeTemplates[name].Type)
	}
	return nil
}

func elaborateFile(path string) (*tosca.Result, error) {
	root, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	result := tosca.Parse(context.Background(), root, path, fileLoader)
	if result.Topology == nil {
		return nil, fmt.Errorf("stage %s: %v", result.Stage, result.Diagnostics)
	}
	return result, nil
}

func diffNodeTemplates(oldResult, newResult *tosca.Result) (added, removed, changedType []string) {
	oldTopo, newTopo := oldResult.Topology, newResult.Topology
	for name := range newTopo.NodeTemplates {
		if _, ok := oldTopo.NodeTemplates[name]; !ok {
			added = append(added, name)
		}
	}
	for name, oldNT := range oldTopo.NodeTemplates {
		newNT, ok := newTopo.NodeTemplates[name]
		if !ok {
			removed = append(removed, name)
			continue
		}
		if oldNT.Type != newNT.Type {
			changedType = append(changedType, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changedType)
	return added, removed, changedType
}
