package store

import "time"

// Row types. Positions are 1-based lines and 0-based byte columns, the
// same convention as diag.Pos.

type File struct {
	ID          int64
	Path        string
	Module      string
	IsPackage   bool
	Hash        string
	Docstring   string
	LastIndexed time.Time
}

type Scope struct {
	ID            int64
	FileID        int64
	ParentScopeID *int64
	Kind          string
	Name          string
	QualifiedName string
	StartLine     int
	StartCol      int
	EndLine       int
	EndCol        int
}

// Definition is a function or class row. Modifiers holds the flags
// (async, method, static, classmethod, property) as a JSON list.
type Definition struct {
	ID            int64
	FileID        int64
	ScopeID       int64
	BodyScopeID   *int64
	Kind          string
	Name          string
	QualifiedName string
	Docstring     string
	Returns       string
	TypeParams    string
	Modifiers     []string
	SignatureHash string
	StartLine     int
	StartCol      int
	EndLine       int
	EndCol        int
}

// HasModifier reports whether m is among d's modifiers.
func (d *Definition) HasModifier(m string) bool {
	for _, x := range d.Modifiers {
		if x == m {
			return true
		}
	}
	return false
}

type Parameter struct {
	ID           int64
	DefinitionID int64
	Ordinal      int
	Name         string
	Kind         string
	Annotation   string
	DefaultExpr  string
}

type Decorator struct {
	ID           int64
	DefinitionID int64
	Ordinal      int
	Name         string
	Text         string
	Args         []string
	IsCall       bool
	Line         int
}

// Base is a base-class argument of a class definition. Keyword is set for
// keyword arguments such as metaclass=...; Resolved for positional bases
// that matched a class of the same module.
type Base struct {
	ID           int64
	DefinitionID int64
	Ordinal      int
	Keyword      string
	Text         string
	Resolved     string
}

type Import struct {
	ID       int64
	FileID   int64
	Scope    string
	Module   string
	Symbol   string
	Alias    string
	Level    int
	Wildcard bool
	Line     int
	Col      int
}

type CallSite struct {
	ID        int64
	FileID    int64
	ScopeID   int64
	Scope     string
	Callee    string
	Args      []string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

type Assignment struct {
	ID         int64
	FileID     int64
	ScopeID    int64
	Scope      string
	Targets    []string
	Op         string
	Annotation string
	Value      string
	Literal    bool
	IsConstant bool
	Line       int
	Col        int
}

type Diagnostic struct {
	ID      int64
	FileID  int64
	Kind    string
	Message string
	Line    int
	Col     int
	EndLine int
	EndCol  int
}
