// Package cierr defines the failure kinds of a resolution run and the structured
// error that carries them.
package cierr

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Error kinds. Match with errors.Is.
var (
	ErrMalformedDocument        = errors.New("malformed document")
	ErrMalformedMerge           = errors.New("malformed merge key")
	ErrUnresolvedAlias          = errors.New("unresolved alias")
	ErrIncludeNotFound          = errors.New("include not found")
	ErrInvalidIncludeSpec       = errors.New("invalid include spec")
	ErrIncludeCycle             = errors.New("include cycle")
	ErrUnknownExtendsTarget     = errors.New("unknown extends target")
	ErrExtendsCycle             = errors.New("extends cycle")
	ErrExtendsTooDeep           = errors.New("extends nesting too deep")
	ErrUnknownReference         = errors.New("unknown reference")
	ErrUnknownStage             = errors.New("unknown stage")
	ErrInvalidJobShape          = errors.New("invalid job shape")
	ErrConflictingStageOrder    = errors.New("conflicting stage order")
	ErrConflictingJobDefinition = errors.New("conflicting job definition")
)

var kinds = []error{
	ErrMalformedDocument,
	ErrMalformedMerge,
	ErrUnresolvedAlias,
	ErrIncludeNotFound,
	ErrInvalidIncludeSpec,
	ErrIncludeCycle,
	ErrUnknownExtendsTarget,
	ErrExtendsCycle,
	ErrExtendsTooDeep,
	ErrUnknownReference,
	ErrUnknownStage,
	ErrInvalidJobShape,
	ErrConflictingStageOrder,
	ErrConflictingJobDefinition,
}

// ResolveError is the single failure reported by a resolution run. It records
// where resolution stopped so a diagnostic can be rendered without re-walking
// any state.
type ResolveError struct {
	Kind    error
	Path    string   // document the failure belongs to
	Key     string   // job, template, or top-level key involved
	Chain   []string // include or extends chain at the time of failure
	Line    int
	Message string
	Err     error // underlying cause, if any
}

func (e *ResolveError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " (key %q)", e.Key)
	}
	if e.Path != "" {
		b.WriteString(" in ")
		b.WriteString(e.Path)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
	}
	if len(e.Chain) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Chain, " -> "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is this error's kind.
func (e *ResolveError) Is(target error) bool { return target == e.Kind }

func (e *ResolveError) Unwrap() error { return e.Err }

// New builds a ResolveError of the given kind.
func New(kind error, format string, args ...any) *ResolveError {
	return &ResolveError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InFile sets the document path and source line.
func (e *ResolveError) InFile(path string, line int) *ResolveError {
	e.Path = path
	e.Line = line
	return e
}

// ForKey sets the key the failure is about.
func (e *ResolveError) ForKey(key string) *ResolveError {
	e.Key = key
	return e
}

// Via records the chain that led to the failure. The slice is copied.
func (e *ResolveError) Via(chain []string) *ResolveError {
	e.Chain = append([]string(nil), chain...)
	return e
}

// Wrap attaches an underlying cause.
func (e *ResolveError) Wrap(err error) *ResolveError {
	e.Err = err
	return e
}

// Hint returns the error with a user-facing hint attached.
func (e *ResolveError) Hint(hint string) error {
	return errors.WithHint(e, hint)
}

// KindOf returns the kind of err, or nil if err carries none.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a short name for the kind of err, suitable for storage.
func KindName(err error) string {
	k := KindOf(err)
	if k == nil {
		return ""
	}
	return strings.ReplaceAll(k.Error(), " ", "_")
}

// Hints returns all user-facing hints attached to err.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}
