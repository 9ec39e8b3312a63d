package main

import (
	"flag"
	"fmt"

	_ "github.com/toscaforge/tosca/normative"
	"github.com/toscaforge/tosca/typesystem"
)

var schemaKinds = []typesystem.Kind{
	typesystem.KindNode,
	typesystem.KindRelationship,
	typesystem.KindCapability,
	typesystem.KindData,
	typesystem.KindInterface,
	typesystem.KindArtifact,
	typesystem.KindPolicy,
	typesystem.KindGroup,
}

func runSchema(args []string) error {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: toscactl schema [options] <tosca_definitions_version>\n\nPrint the normative type table for a version.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	version := "tosca_simple_yaml_1_3"
	if fs.NArg() >= 1 {
		version = fs.Arg(0)
	}

	registry, err := typesystem.NewRegistry(version)
	if err != nil {
		return fmt.Errorf("unknown tosca_definitions_version %q (known: %v): %w", version, typesystem.KnownProfiles(), err)
	}

	for _, kind := range schemaKinds {
		defs := registry.All(kind)
		if len(defs) == 0 {
			continue
		}
		fmt.Printf("%s (%d):\n", kind, len(defs))
		for _, def := range defs {
			parent := def.Parent
			if parent == "" {
				parent = "(root)"
			}
			fmt.Printf("  %-45s derived_from=%s\n", def.Name, parent)
		}
		fmt.Println()
	}
	return nil
}
