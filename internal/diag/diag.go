// Package diag defines source positions, the fatal error taxonomy and the
// non-fatal diagnostics shared by every stage of the analysis pipeline.
package diag

import (
	"errors"
	"fmt"
)

// Pos is a position in source text. Line is 1-based, Col is a 0-based byte
// column within the line, Offset is the 0-based byte offset in the input.
type Pos struct {
	Line   int
	Col    int
	Offset int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Span is a half-open range [Start, End) of source text.
type Span struct {
	Start Pos
	End   Pos
}

func (s Span) String() string {
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// Join returns the smallest span covering both s and o.
func (s Span) Join(o Span) Span {
	out := s
	if o.Start.Offset < out.Start.Offset {
		out.Start = o.Start
	}
	if o.End.Offset > out.End.Offset {
		out.End = o.End
	}
	return out
}

// ErrorKind classifies a fatal error.
type ErrorKind string

const (
	KindLex         ErrorKind = "LexError"
	KindIndentation ErrorKind = "IndentationError"
	KindParse       ErrorKind = "ParseError"
)

// LexReason refines a LexError.
type LexReason string

const (
	UnterminatedString LexReason = "UnterminatedString"
	InvalidCharacter   LexReason = "InvalidCharacter"
)

// Error is a fatal error that terminates the pass for one source unit.
type Error struct {
	Kind ErrorKind
	// Reason is set for lexical errors only.
	Reason LexReason
	// Structural marks a ParseError raised because the parser's block stack
	// diverged from the indentation stack.
	Structural bool
	Span       Span
	Msg        string
}

func (e *Error) Error() string {
	kind := string(e.Kind)
	if e.Reason != "" {
		kind += "(" + string(e.Reason) + ")"
	}
	if e.Structural {
		kind += "(structural)"
	}
	return fmt.Sprintf("%s at %s: %s", kind, e.Span.Start, e.Msg)
}

// Lex returns a LexError.
func Lex(reason LexReason, span Span, format string, args ...any) *Error {
	return &Error{Kind: KindLex, Reason: reason, Span: span, Msg: fmt.Sprintf(format, args...)}
}

// Indentation returns an IndentationError.
func Indentation(span Span, format string, args ...any) *Error {
	return &Error{Kind: KindIndentation, Span: span, Msg: fmt.Sprintf(format, args...)}
}

// Parse returns a ParseError.
func Parse(span Span, format string, args ...any) *Error {
	return &Error{Kind: KindParse, Span: span, Msg: fmt.Sprintf(format, args...)}
}

// Structural returns a ParseError for a block-stack divergence.
func Structural(span Span, format string, args ...any) *Error {
	return &Error{Kind: KindParse, Structural: true, Span: span, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err wraps a diag Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// DiagnosticKind classifies a non-fatal notice.
type DiagnosticKind string

const (
	SkippedConstruct  DiagnosticKind = "SkippedConstruct"
	OrphanedDecorator DiagnosticKind = "OrphanedDecorator"
)

// Diagnostic is a non-fatal notice recorded while the pass continues.
type Diagnostic struct {
	Kind DiagnosticKind
	Span Span
	Msg  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at %s: %s", d.Kind, d.Span.Start, d.Msg)
}
