package outline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/jward/outline/internal/config"
	"github.com/jward/outline/internal/extract"
	"github.com/jward/outline/internal/metrics"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/store"
)

// ErrLabelConflict is returned when two different files map to the same
// module label.
var ErrLabelConflict = errors.New("module label already taken by another file")

// Engine orchestrates the outline pipeline: file discovery, analysis,
// project-wide merge, optional persistence and query access.
type Engine struct {
	store    *store.Store
	dbPath   string
	project  *model.Project
	analyzer *analyzer
	logger   *slog.Logger

	workers    int
	tabSize    int
	markers    extract.Markers
	root       string
	extensions []string
	exclude    []string
	excludes   []glob.Glob

	rulesDir string
	rulesFS  fs.FS

	// results holds the latest Result per module path.
	mu      sync.Mutex
	results map[string]*Result
}

// Option configures an Engine.
type Option func(*Engine)

// WithDatabase persists analyzed modules to a SQLite database at path.
func WithDatabase(path string) Option {
	return func(e *Engine) {
		e.dbPath = path
	}
}

// WithLogger routes Engine logging to l. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithWorkers bounds the analysis worker pool. Zero or less means one
// worker per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithTabSize sets the tab stop used to measure indentation.
func WithTabSize(n int) Option {
	return func(e *Engine) {
		e.tabSize = n
	}
}

// WithMarkers sets the decorator names that flag static methods, class
// methods and properties.
func WithMarkers(m extract.Markers) Option {
	return func(e *Engine) {
		e.markers = m
	}
}

// WithExclude skips files whose root-relative slash path matches any of
// the glob patterns.
func WithExclude(patterns ...string) Option {
	return func(e *Engine) {
		e.exclude = append(e.exclude, patterns...)
	}
}

// WithExtensions sets the file suffixes AnalyzeDirectory picks up.
func WithExtensions(exts ...string) Option {
	return func(e *Engine) {
		e.extensions = exts
	}
}

// WithRoot anchors module labels: a file's label is derived from its path
// relative to root.
func WithRoot(root string) Option {
	return func(e *Engine) {
		e.root = root
	}
}

// WithRules loads rule scripts for Check from dir.
func WithRules(dir string) Option {
	return func(e *Engine) {
		e.rulesDir = dir
	}
}

// WithRulesFS loads rule scripts for Check from fsys instead of disk. This
// enables embedding rules via go:embed.
func WithRulesFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.rulesFS = fsys
	}
}

// WithConfig applies a loaded configuration. The database path is not
// taken from cfg; callers pass it with WithDatabase so that the CLI can
// resolve it against the project root.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.tabSize = cfg.TabSize
		e.workers = cfg.Workers
		e.markers = cfg.Decorators
		e.exclude = append(e.exclude, cfg.Exclude...)
		e.extensions = cfg.Extensions
		if cfg.Rules.Dir != "" {
			e.rulesDir = cfg.Rules.Dir
		}
	}
}

// New creates an Engine. Without WithDatabase the Engine is purely
// in-memory.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		project:    model.NewProject(),
		logger:     slog.New(slog.DiscardHandler),
		tabSize:    defaultTabSize,
		markers:    extract.DefaultMarkers(),
		extensions: []string{".py", ".pyi"},
		results:    make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = goruntime.NumCPU()
	}
	for _, p := range e.exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("outline: exclude pattern %q: %w", p, err)
		}
		e.excludes = append(e.excludes, g)
	}
	e.analyzer = newAnalyzer(e.tabSize, e.markers)

	if e.dbPath != "" {
		s, err := store.NewStore(e.dbPath)
		if err != nil {
			return nil, fmt.Errorf("outline: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("outline: migrate: %w", err)
		}
		e.store = s
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the underlying Store, or nil for an in-memory Engine.
func (e *Engine) Store() *Store {
	return e.store
}

// Project returns the project-wide index of every merged module.
func (e *Engine) Project() *Project {
	return e.project
}

// Query returns a new QueryBuilder over the project and the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{project: e.project, store: e.store}
}

// Result returns the latest Result for a module path.
func (e *Engine) Result(path string) (*Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.results[filepath.ToSlash(path)]
	return r, ok
}

// AnalyzeSource analyzes src as the unit at path and merges the module into
// the project. Unlike AnalyzeFile it never touches disk or the Store. A
// fatal error for the unit is reported in the Result, not returned.
func (e *Engine) AnalyzeSource(path string, src []byte) (*Result, error) {
	path = filepath.ToSlash(path)
	start := time.Now()
	r := e.analyzer.analyze(path, src)
	metrics.AnalysisDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	e.record(r, false)
	if err := e.merge(r); err != nil {
		return r, err
	}
	return r, nil
}

// AnalyzeFile analyzes and merges one file from disk.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (*Result, error) {
	results, err := e.AnalyzeFiles(ctx, []string{path})
	if len(results) == 0 {
		return nil, err
	}
	return results[0], err
}

// record updates metrics and logs the outcome of one unit.
func (e *Engine) record(r *Result, unchanged bool) {
	if fe := r.Fatal(); fe != nil {
		metrics.UnitsAnalyzed.WithLabelValues(metrics.OutcomeFailed).Inc()
		metrics.FatalErrors.WithLabelValues(string(fe.Kind)).Inc()
		e.logger.Warn("analysis failed", "path", r.Path, "error", fe)
		return
	}
	outcome := metrics.OutcomeOK
	if unchanged {
		outcome = metrics.OutcomeUnchanged
	}
	metrics.UnitsAnalyzed.WithLabelValues(outcome).Inc()
	for _, d := range r.Diagnostics {
		metrics.Diagnostics.WithLabelValues(string(d.Kind)).Inc()
		e.logger.Debug("diagnostic", "path", r.Path, "kind", d.Kind, "span", d.Span.String(), "msg", d.Msg)
	}
}

// merge folds r into the project. A failed unit drops any previous model
// of the same path so stale entities do not outlive the source.
func (e *Engine) merge(r *Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { metrics.ProjectModules.Set(float64(e.project.Len())) }()

	if r.Module == nil {
		if prev, ok := e.results[r.Path]; ok && prev.Module != nil {
			e.project.Remove(prev.Module.Name)
		}
		e.results[r.Path] = r
		return nil
	}

	if prev, ok := e.results[r.Path]; ok && prev.Module != nil && prev.Module.Name != r.Module.Name {
		e.project.Remove(prev.Module.Name)
	}
	name := r.Module.Name
	if existing, ok := e.project.Module(name); ok {
		if existing.Module().Path != r.Path {
			return fmt.Errorf("merge %s: %w: %s and %s", name, ErrLabelConflict, existing.Module().Path, r.Path)
		}
		e.project.Replace(r.Index)
	} else if err := e.project.Add(r.Index); err != nil {
		return fmt.Errorf("merge %s: %w", r.Path, err)
	}
	e.results[r.Path] = r
	return nil
}

// label returns the module path of a file: slash-separated and relative to
// the Engine root when the file lies beneath it.
func (e *Engine) label(path string) string {
	if e.root != "" {
		if rel, err := filepath.Rel(e.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

// settingsHash identifies the analysis settings a stored module was built
// with. Stored rows are only reused while this hash is unchanged.
func (e *Engine) settingsHash() string {
	h := sha256.New()
	h.Write([]byte("tab=" + strconv.Itoa(e.tabSize) + "\n"))
	for _, list := range [][]string{e.markers.Static, e.markers.ClassMethod, e.markers.Property} {
		h.Write([]byte(strings.Join(list, ",") + "\n"))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// SettingsChanged reports whether the analysis settings differ from those
// used to build the current database. Returns true if the DB has no
// stored hash (first run) or if the hash doesn't match. When true, every
// file is re-committed on the next run.
func (e *Engine) SettingsChanged() bool {
	if e.store == nil {
		return false
	}
	stored, err := e.store.GetMetadata("settings_hash")
	if err != nil || stored == "" {
		return true
	}
	return stored != e.settingsHash()
}

// storeSettingsHash persists the current settings hash to the database.
func (e *Engine) storeSettingsHash() {
	if e.store == nil {
		return
	}
	if err := e.store.SetMetadata("settings_hash", e.settingsHash()); err != nil {
		e.logger.Warn("store settings hash", "error", err)
	}
}

// skipDirs lists directories that are never source trees.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// AnalyzeDirectory analyzes every source file under root. If root is inside
// a git repository, uses git ls-files to respect .gitignore. Falls back to
// a filesystem walk (skipping hidden dirs, node_modules, vendor,
// __pycache__) if git is unavailable. Files matching an exclude pattern are
// skipped. When no root was configured, root anchors module labels.
func (e *Engine) AnalyzeDirectory(ctx context.Context, root string) ([]*Result, error) {
	if e.root == "" {
		e.root = root
	}
	paths, err := e.gitListFiles(root)
	if err != nil {
		e.logger.Debug("git ls-files unavailable, walking", "root", root, "error", err)
		paths, err = e.walkListFiles(root)
		if err != nil {
			return nil, err
		}
	}
	e.logger.Info("discovered files", "root", root, "count", len(paths))
	return e.AnalyzeFiles(ctx, paths)
}

// wanted reports whether path has a source extension and is not excluded.
func (e *Engine) wanted(root, path string) bool {
	ext := filepath.Ext(path)
	ok := false
	for _, want := range e.extensions {
		if ext == want {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, g := range e.excludes {
		if g.Match(rel) {
			return false
		}
	}
	return true
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	// --cached: tracked files, --others: untracked files,
	// --exclude-standard: respect .gitignore, .git/info/exclude, global excludes.
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if e.wanted(root, absPath) {
			paths = append(paths, absPath)
		}
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem, used as a
// fallback when git is not available.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if e.wanted(root, path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// readSource reads a file for analysis.
func readSource(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return src, nil
}
