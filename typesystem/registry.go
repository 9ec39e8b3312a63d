package typesystem

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/toscaforge/tosca/diagnostic"
)

// SeedFunc populates a freshly created Registry with the normative types of
// one tosca_definitions_version (or a named profile extension such as an
// NFV/MEC profile). Profile authors register their own SeedFunc via
// RegisterProfile; the core requires no dynamic code loading (§9).
type SeedFunc func(*Registry) error

var (
	seedMu  sync.RWMutex
	seeders = map[string]SeedFunc{}
)

// RegisterProfile registers the normative type table for a
// tosca_definitions_version identifier (or profile extension name). Intended
// to be called from package init functions, mirroring the teacher's
// schema.RegisterModuleType plugin-registration idiom.
func RegisterProfile(version string, fn SeedFunc) {
	seedMu.Lock()
	defer seedMu.Unlock()
	seeders[version] = fn
}

// KnownProfiles returns the sorted list of registered version identifiers.
func KnownProfiles() []string {
	seedMu.RLock()
	defer seedMu.RUnlock()
	out := make([]string, 0, len(seeders))
	for v := range seeders {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Registry holds merged type definitions for a single parse invocation. Per
// §5, the registry is mutated only during IMPORTS_RESOLVED -> TYPES_FLATTENED
// and is safe to share read-only thereafter; it is not safe for concurrent
// mutation, matching "no shared mutable state between invocations" but a
// single invocation runs on one logical task so the mutex here only guards
// against accidental reentrancy, not multi-writer concurrency.
type Registry struct {
	mu      sync.RWMutex
	version string
	logger  *slog.Logger

	types   map[QualifiedName]*TypeDefinition
	aliasOf map[QualifiedName]QualifiedName

	flattenMu    sync.Mutex
	flattenCache map[QualifiedName]*FlattenedView
}

// Option configures a new Registry.
type Option func(*Registry)

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry seeded with the normative types of version,
// returning an error wrapping ErrUnsupportedVersion if no SeedFunc is
// registered for it.
func NewRegistry(version string, opts ...Option) (*Registry, error) {
	seedMu.RLock()
	fn, ok := seeders[version]
	seedMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}

	r := &Registry{
		version:      version,
		logger:       slog.Default(),
		types:        make(map[QualifiedName]*TypeDefinition),
		aliasOf:      make(map[QualifiedName]QualifiedName),
		flattenCache: make(map[QualifiedName]*FlattenedView),
	}
	for _, o := range opts {
		o(r)
	}
	if err := fn(r); err != nil {
		return nil, fmt.Errorf("typesystem: seeding %q: %w", version, err)
	}
	return r, nil
}

// Version returns the tosca_definitions_version this registry was seeded for.
func (r *Registry) Version() string { return r.version }

// Register adds a TypeDefinition to the registry. A duplicate fully
// qualified name is rejected with diagnostic.KindDuplicateType unless the
// later definition carries metadata.alias: true, in which case it becomes a
// secondary name for the existing type (§4.B step 2).
func (r *Registry) Register(def *TypeDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if alias, _ := def.Metadata["alias"].(bool); alias {
		if def.AliasOf == "" {
			return fmt.Errorf("%w: alias %q does not name an AliasOf target", ErrDuplicateType, def.Name)
		}
		existing, ok := r.types[def.AliasOf]
		if !ok {
			return fmt.Errorf("%w: alias %q points at undefined type %q", ErrDuplicateType, def.Name, def.AliasOf)
		}
		def.IsAlias = true
		def.AliasOf = existing.Name
		r.types[def.Name] = def
		r.aliasOf[def.Name] = existing.Name
		r.logger.Debug("typesystem: registered alias", "name", def.Name, "of", existing.Name)
		return nil
	}

	if _, exists := r.types[def.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateType, def.Name)
	}
	r.types[def.Name] = def
	r.logger.Debug("typesystem: registered type", "name", def.Name, "kind", def.Kind)
	return nil
}

// Get returns the TypeDefinition for name, resolving through one level of
// alias indirection. The second result reports whether name was found; the
// third is a deprecation flag: true if name was an alias (callers should surface a warning diagnostic per §8 scenario 6).
func (r *Registry) Get(name QualifiedName) (*TypeDefinition, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.types[name]
	if !ok {
		return nil, false, false
	}
	if def.IsAlias {
		target, ok := r.types[def.AliasOf]
		return target, ok, true
	}
	return def, true, false
}

// All returns every registered (non-alias) TypeDefinition of the given kind,
// sorted by name.
func (r *Registry) All(kind Kind) []*TypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TypeDefinition, 0)
	for _, def := range r.types {
		if def.IsAlias || def.Kind != kind {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolveDerivations topologically sorts every registered type by
// derived_from, reporting diagnostic.KindTypeCycle (fatal) for any cycle and
// diagnostic.KindUnknownType for a parent that was never registered. It
// returns the sorted order (parents before children).
func (r *Registry) ResolveDerivations(sink *diagnostic.Sink) ([]QualifiedName, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[QualifiedName]int, len(r.types))
	var order []QualifiedName

	var visit func(name QualifiedName, path []QualifiedName) error
	visit = func(name QualifiedName, path []QualifiedName) error {
		def, ok := r.types[name]
		if !ok || def.IsAlias {
			return nil
		}
		switch color[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: %v -> %s", ErrTypeCycle, path, name)
		}
		color[name] = gray
		if def.Parent != "" {
			parent, ok := r.types[def.Parent]
			if !ok {
				_ = sink.Errorf(diagnostic.KindUnknownType, diagnostic.Source{Path: string(def.Name)},
					"type %q derives from unknown type %q", def.Name, def.Parent)
			} else {
				target := parent.Name
				if parent.IsAlias {
					target = parent.AliasOf
				}
				if err := visit(target, append(path, name)); err != nil {
					return err
				}
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	names := make([]QualifiedName, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, n := range names {
		if err := visit(n, nil); err != nil {
			_ = sink.Errorf(diagnostic.KindTypeCycle, diagnostic.Source{Path: string(n)}, "%v", err)
			return nil, err
		}
	}
	return order, nil
}

// DerivesFrom reports whether child's type chain includes ancestor (or
// child == ancestor).
func (r *Registry) DerivesFrom(child, ancestor QualifiedName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[QualifiedName]bool{}
	cur := child
	for cur != "" {
		if seen[cur] {
			return false
		}
		seen[cur] = true
		if cur == ancestor {
			return true
		}
		def, ok := r.types[cur]
		if !ok {
			return false
		}
		if def.IsAlias {
			cur = def.AliasOf
			continue
		}
		cur = def.Parent
	}
	return false
}
