// Command toscactl validates and inspects TOSCA Simple Profile service
// templates from the command line.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

var commands = map[string]func([]string) error{
	"validate": runValidate,
	"inspect":  runInspect,
	"schema":   runSchema,
	"diff":     runDiff,
}

func usage() {
	fmt.Fprintf(os.Stderr, `toscactl - TOSCA Simple Profile validator (version %s)

Usage:
  toscactl <command> [options]

Commands:
  validate   Validate a TOSCA service template and print its diagnostics
  inspect    Inspect node templates, requirement bindings, and outputs
  schema     Print the normative type table for a tosca_definitions_version
  diff       Compare two service templates and report elaborated differences

Run 'toscactl <command> -h' for command-specific help.
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		os.Exit(0)
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println(version)
		os.Exit(0)
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err := fn(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
