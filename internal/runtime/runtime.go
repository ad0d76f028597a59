package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/store"
)

// Runtime embeds a Risor VM and exposes one analyzed module at a time to
// rule scripts through host functions.
type Runtime struct {
	store    *store.Store
	rulesDir string
	fsys     fs.FS
	logger   *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeStore exposes the Store to scripts through db_query.
func WithRuntimeStore(s *store.Store) RuntimeOption {
	return func(r *Runtime) {
		r.store = s
	}
}

// WithRuntimeLogger routes the script-side log object to l.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime loading rule scripts from rulesDir.
func NewRuntime(rulesDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		rulesDir: rulesDir,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Finding is one report() call made by a rule script.
type Finding struct {
	Rule          string
	Module        string
	Path          string
	QualifiedName string
	Line          int
	Message       string
}

func (f Finding) String() string {
	loc := f.Path
	if f.Line > 0 {
		loc = fmt.Sprintf("%s:%d", f.Path, f.Line)
	}
	if f.QualifiedName != "" {
		return fmt.Sprintf("%s: [%s] %s: %s", loc, f.Rule, f.QualifiedName, f.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", loc, f.Rule, f.Message)
}

// RunRule loads and executes a rule script against ix.
func (r *Runtime) RunRule(ctx context.Context, scriptPath string, ix *model.Index) ([]Finding, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	rule := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	return r.eval(ctx, src, rule, ix)
}

// RunSource executes Risor source code directly against ix. Useful for
// testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, ix *model.Index) ([]Finding, error) {
	return r.eval(ctx, source, "<inline>", ix)
}

func (r *Runtime) eval(ctx context.Context, source, rule string, ix *model.Index) ([]Finding, error) {
	rep := &reporter{rule: rule, ix: ix}
	globals := r.buildGlobals(ix, rep)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	_, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: rule %s on %s: %w", rule, ix.Name(), err)
	}
	return rep.findings, nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor rulesDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.rulesDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.rulesDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
// When an fs.FS is configured, uses fs.ReadFile on the embedded filesystem.
// Otherwise, uses os.ReadFile with rulesDir as the base directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		// For fs.FS, strip any leading path separator so the path is
		// relative within the FS (e.g., "/naming.risor" -> "naming.risor").
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.rulesDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// RuleScripts lists the top-level *.risor files of the rule source, sorted.
// Subdirectories hold importable helpers and are not rules.
func (r *Runtime) RuleScripts() ([]string, error) {
	var entries []fs.DirEntry
	var err error
	switch {
	case r.fsys != nil:
		entries, err = fs.ReadDir(r.fsys, ".")
	case r.rulesDir != "":
		entries, err = os.ReadDir(r.rulesDir)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runtime: list rules: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".risor") {
			paths = append(paths, e.Name())
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(ix *model.Index, rep *reporter) map[string]any {
	globals := map[string]any{
		"module":      makeModuleFn(ix),
		"classes":     makeClassesFn(ix),
		"functions":   makeFunctionsFn(ix),
		"imports":     makeImportsFn(ix),
		"calls":       makeCallsFn(ix),
		"constants":   makeConstantsFn(ix),
		"lookup":      makeLookupFn(ix),
		"children":    makeChildrenFn(ix),
		"diagnostics": makeDiagnosticsFn(ix),
		"report":      makeReportFn(rep),
		"log":         mustProxy(&logObject{logger: r.logger.With("rule", rep.rule, "module", ix.Name())}),
	}

	// Expose the Store if available.
	if r.store != nil {
		globals["db_query"] = makeDBQueryFn(r.store)
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string)  { l.logger.Info(msg) }
func (l *logObject) Warn(msg string)  { l.logger.Warn(msg) }
func (l *logObject) Error(msg string) { l.logger.Error(msg) }
