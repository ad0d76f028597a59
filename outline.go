package outline

import (
	"errors"

	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/extract"
	"github.com/jward/outline/internal/indent"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/parser"
	"github.com/jward/outline/internal/store"
)

// Result is the outcome of analyzing one source unit. Module and Index are
// nil when Err is set; Diagnostics holds the non-fatal notices otherwise.
type Result struct {
	Path        string
	Source      []byte
	Hash        string
	Module      *model.Module
	Index       *model.Index
	Diagnostics []diag.Diagnostic
	Err         error
}

// Fatal returns the fatal diag error of the unit, or nil.
func (r *Result) Fatal() *diag.Error {
	var de *diag.Error
	if errors.As(r.Err, &de) {
		return de
	}
	return nil
}

// Analyze runs the full pipeline over src with default settings. path is
// only used to derive the module label.
func Analyze(path string, src []byte) *Result {
	return newAnalyzer(defaultTabSize, extract.DefaultMarkers()).analyze(path, src)
}

const defaultTabSize = 8

// analyzer holds the per-Engine pipeline settings. It keeps no state
// between units and is safe for concurrent use.
type analyzer struct {
	tabSize   int
	extractor *extract.Extractor
}

func newAnalyzer(tabSize int, markers extract.Markers) *analyzer {
	return &analyzer{
		tabSize:   tabSize,
		extractor: extract.New(extract.WithMarkers(markers)),
	}
}

func (a *analyzer) analyze(path string, src []byte) *Result {
	r := &Result{Path: path, Source: src, Hash: store.ContentHash(src)}
	f, err := parser.Parse(string(src), indent.WithTabSize(a.tabSize))
	if err != nil {
		r.Err = err
		return r
	}
	r.Module = a.extractor.Extract(path, f)
	r.Index = model.NewIndex(r.Module)
	r.Diagnostics = r.Module.Diagnostics
	return r
}
