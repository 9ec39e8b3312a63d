// Package diagnostic provides the error taxonomy and diagnostic sink shared
// by every stage of the TOSCA parsing pipeline (import resolution, type
// registration, elaboration, function evaluation, substitution checking).
package diagnostic

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the taxonomy of a diagnostic, per §7 of the specification.
type Kind string

const (
	KindSchemaError                Kind = "SchemaError"
	KindUnsupportedVersion         Kind = "UnsupportedVersionError"
	KindImportError                Kind = "ImportError"
	KindTypeCycle                  Kind = "TypeCycleError"
	KindDuplicateType              Kind = "DuplicateTypeError"
	KindUnknownType                Kind = "UnknownTypeError"
	KindIncompatibleDerivation     Kind = "IncompatibleDerivationError"
	KindUnknownField               Kind = "UnknownFieldError"
	KindMissingRequiredField       Kind = "MissingRequiredFieldError"
	KindMissingRequiredInput       Kind = "MissingRequiredInputError"
	KindConstraintViolation        Kind = "ConstraintViolation"
	KindTypeMismatch               Kind = "TypeMismatchError"
	KindInvalidScalarUnit          Kind = "InvalidScalarUnitError"
	KindAmbiguousTarget            Kind = "AmbiguousTargetError"
	KindNoMatch                    Kind = "NoMatchError"
	KindOccurrence                 Kind = "OccurrenceError"
	KindFunctionEvaluation         Kind = "FunctionEvaluationError"
	KindUnknownFunction             Kind = "UnknownFunctionError"
	KindSubstitutionMapping        Kind = "SubstitutionMappingError"
)

// fatalKinds abort the current pipeline stage rather than letting the
// elaborator continue best-effort. See §7: "unresolvable imports,
// type-derivation cycles, and unsupported version" are the only fatal
// conditions.
var fatalKinds = map[Kind]bool{
	KindImportError:        true,
	KindTypeCycle:          true,
	KindUnsupportedVersion: true,
}

// IsFatal reports whether a diagnostic of this kind aborts the enclosing stage.
func IsFatal(k Kind) bool { return fatalKinds[k] }

// Severity distinguishes hard failures from advisory notices (e.g. deprecated
// alias usage).
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Source locates a diagnostic in the originating YAML document.
type Source struct {
	File   string
	Line   int
	Column int
	Path   string // dot/bracket path within the document, e.g. "node_templates.db.requirements[1]"
}

func (s Source) String() string {
	if s.File == "" && s.Line == 0 {
		return s.Path
	}
	if s.Path == "" {
		return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
	}
	return fmt.Sprintf("%s:%d:%d: %s", s.File, s.Line, s.Column, s.Path)
}

// Diagnostic is a single reported problem, tagged with its kind and the
// source location that produced it.
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Message  string
	Source   Source
	Related  []Source
}

func (d *Diagnostic) Error() string {
	if d.Source.File == "" && d.Source.Path == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Source, d.Kind, d.Message)
}

// Diagnostics collects diagnostics accumulated across a pipeline run. The
// zero value is usable.
type Diagnostics []*Diagnostic

func (ds Diagnostics) Error() string {
	msgs := make([]string, len(ds))
	for i, d := range ds {
		msgs[i] = d.Error()
	}
	return fmt.Sprintf("%d diagnostic(s):\n  - %s", len(ds), strings.Join(msgs, "\n  - "))
}

// HasErrors reports whether any diagnostic has error severity.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func (ds Diagnostics) Errors() Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Sorted returns a copy of ds ordered by (file, line, column) as required by §7.
func (ds Diagnostics) Sorted() Diagnostics {
	out := make(Diagnostics, len(ds))
	copy(out, ds)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Source, out[j].Source
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return out
}

// Sink accumulates diagnostics across every stage of one parse invocation.
// It is not safe for concurrent use from multiple goroutines; a single
// invocation is expected to run on one logical task (§5).
type Sink struct {
	strict bool
	diags  Diagnostics
}

// NewSink creates an empty diagnostic sink. When strict is true, Report
// returns a non-nil error for the first error-severity diagnostic so the
// caller can short-circuit (§4.G "a strict mode short-circuits on the first
// error").
func NewSink(strict bool) *Sink {
	return &Sink{strict: strict}
}

// Report records a diagnostic. It returns a non-nil error only in strict
// mode and only for error-severity diagnostics; non-strict callers should
// ignore the return value and keep processing.
func (s *Sink) Report(d *Diagnostic) error {
	s.diags = append(s.diags, d)
	if s.strict && d.Severity == SeverityError {
		return d
	}
	return nil
}

// Errorf is a convenience wrapper around Report for error-severity diagnostics.
func (s *Sink) Errorf(kind Kind, src Source, format string, args ...any) error {
	return s.Report(&Diagnostic{
		Severity: SeverityError,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Source:   src,
	})
}

// Warnf is a convenience wrapper around Report for warning-severity diagnostics.
func (s *Sink) Warnf(kind Kind, src Source, format string, args ...any) {
	_ = s.Report(&Diagnostic{
		Severity: SeverityWarning,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Source:   src,
	})
}

// Diagnostics returns all diagnostics reported so far, sorted.
func (s *Sink) Diagnostics() Diagnostics {
	return s.diags.Sorted()
}

// HasErrors reports whether any error-severity diagnostic has been recorded.
func (s *Sink) HasErrors() bool {
	return Diagnostics(s.diags).HasErrors()
}
