package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/toscaforge/tosca"
	_ "github.com/toscaforge/tosca/normative"
)

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	strict := fs.Bool("strict", false, "Stop import resolution and type registration at the first error diagnostic")
	inputsFlag := fs.String("input", "", "comma-separated name=value input bindings")
	watch := fs.Bool("watch", false, "Re-validate whenever the template file changes")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: toscactl validate [options] <template.yaml>\n\nValidate a TOSCA service template.\n\nOptions:\n")
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
	var opts []tosca.Option
	if *strict {
		opts = append(opts, tosca.WithStrictMode())
	}
	if *inputsFlag != "" {
		opts = append(opts, tosca.WithInputs(parseInputs(*inputsFlag)))
	}

	if !*watch {
		return validateOnce(path, opts)
	}
	return watchAndValidate(path, opts)
}

func validateOnce(path string, opts []tosca.Option) error {
	root, err := loadDocument(path)
	if err != nil {
		return err
	}

	result := tosca.Parse(context.Background(), root, path, fileLoader, opts...)
	for _, d := range result.Diagnostics {
		fmt.Printf("%s: [%s] %s (%s)\n", d.Severity, d.Kind, d.Message, d.Source.File)
	}

	if result.HasErrors() {
		return fmt.Errorf("template %s is invalid (stage %s)", path, result.Stage)
	}
	fmt.Printf("template %s is valid (stage %s, %d node templates)\n", path, result.Stage, len(result.Topology.NodeTemplates))
	return nil
}

// watchAndValidate watches path's containing directory and re-runs
// validateOnce (debounced by 250ms) after a write/create/rename event whose
// name is path itself, so editors that save via rename-over still trigger a
// re-validation.
func watchAndValidate(path string, opts []tosca.Option) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", dir, err)
	}

	if err := validateOnce(path, opts); err != nil {
		fmt.Printf("error: %v\n", err)
	}

	debounce := 250 * time.Millisecond
	var pending bool
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			timer.Reset(debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("watch error: %v\n", err)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			fmt.Printf("\n--- %s changed, re-validating ---\n", path)
			if err := validateOnce(path, opts); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}
	}
}

func parseInputs(s string) map[string]any {
	out := map[string]any{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
