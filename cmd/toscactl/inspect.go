package main

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/toscaforge/tosca"
	_ "github.com/toscaforge/tosca/normative"
)

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	showRequirements := fs.Bool("requirements", false, "Show each node template's requirement bindings")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: toscactl inspect [options] <template.yaml>\n\nInspect node templates, requirement bindings, and outputs.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("template file path is required")
	}

	path := fs.Arg(0)
	root, err := loadDocument(path)
	if err != nil {
		return err
	}
	result := tosca.Parse(context.Background(), root, path, fileLoader)
	if result.Topology == nil {
		return fmt.Errorf("template %s could not be elaborated (stage %s)", path, result.Stage)
	}
	topo := result.Topology

	names := topo.NodeOrder()
	fmt.Printf("Node templates (%d):\n", len(names))
	for _, name := range names {
		nt := topo.NodeTemplates[name]
		fmt.Printf("  %-30s type=%s\n", name, nt.Type)
		if *showRequirements {
			for _, ra := range nt.Requirements {
				target := ra.TargetNodeName
				if target == "" {
					target = "(unbound)"
				}
				fmt.Printf("    requirement %-20s -> %s\n", ra.Name, target)
			}
		}
	}

	if len(topo.Groups) > 0 {
		groupNames := make([]string, 0, len(topo.Groups))
		for name := range topo.Groups {
			groupNames = append(groupNames, name)
		}
		sort.Strings(groupNames)
		fmt.Printf("\nGroups (%d):\n", len(topo.Groups))
		for _, name := range groupNames {
			fmt.Printf("  %s\n", name)
		}
	}

	if len(topo.Outputs) > 0 {
		outNames := make([]string, 0, len(topo.Outputs))
		for name := range topo.Outputs {
			outNames = append(outNames, name)
		}
		sort.Strings(outNames)
		fmt.Printf("\nOutputs (%d):\n", len(topo.Outputs))
		for _, name := range outNames {
			fmt.Printf("  %s\n", name)
		}
	}

	if result.HasErrors() {
		fmt.Printf("\n%d diagnostic(s):\n", len(result.Diagnostics))
		for _, d := range result.Diagnostics {
			fmt.Printf("  %s: [%s] %s\n", d.Severity, d.Kind, d.Message)
		}
	}
	return nil
}
