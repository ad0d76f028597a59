package outline

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jward/outline/internal/store"
)

// --- Common Types ---

// Pagination controls offset+limit paging on list/search results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// SortField specifies how to order results.
type SortField string

const (
	SortByName          SortField = "name"
	SortByQualifiedName SortField = "qualified_name"
	SortByKind          SortField = "kind"
	SortByFile          SortField = "file"
	SortByLine          SortField = "line"
)

// SortOrder specifies ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort controls result ordering.
type Sort struct {
	Field SortField
	Order SortOrder
}

// StoredDefinition is a persisted definition with its file and module.
type StoredDefinition struct {
	store.Definition
	FilePath string
	Module   string
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

// DefinitionFilter specifies which definitions to include. All fields are
// optional.
type DefinitionFilter struct {
	Kinds      []string // match any of these kinds
	Modifiers  []string // definition must have ALL of these modifiers
	Decorator  string   // definition must carry a decorator with this name
	Module     string   // restrict to this module and its submodules
	PathPrefix string   // restrict to files under this path
}

// --- Internal Helpers ---

// normalizePathPrefix ensures a path prefix ends with "/" for correct LIKE matching.
// "pkg/sub" -> "pkg/sub/" to prevent matching "pkg/sub_utils/".
func normalizePathPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "/") {
		return prefix + "/"
	}
	return prefix
}

// definitionSortColumn returns the SQL ORDER BY expression for definition
// queries. Falls back to "d.qualified_name" for unknown fields.
func definitionSortColumn(field SortField) string {
	switch field {
	case SortByName:
		return "d.name"
	case SortByKind:
		return "d.kind"
	case SortByFile:
		return "f.path"
	case SortByLine:
		return "d.start_line"
	default:
		return "d.qualified_name"
	}
}

// sortDirection returns "ASC" or "DESC".
func sortDirection(order SortOrder) string {
	if order == Desc {
		return "DESC"
	}
	return "ASC"
}

func (f DefinitionFilter) where() ([]string, []any) {
	var where []string
	var args []any

	if len(f.Kinds) > 0 {
		placeholders := strings.Repeat("?,", len(f.Kinds)-1) + "?"
		where = append(where, "d.kind IN ("+placeholders+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	// Modifier filtering using json_each
	for _, mod := range f.Modifiers {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(d.modifiers) WHERE json_each.value = ?)")
		args = append(args, mod)
	}
	if f.Decorator != "" {
		where = append(where, "EXISTS (SELECT 1 FROM decorators dc WHERE dc.definition_id = d.id AND dc.name = ?)")
		args = append(args, f.Decorator)
	}
	if f.Module != "" {
		where = append(where, "(f.module = ? OR f.module LIKE ? ESCAPE '\\')")
		args = append(args, f.Module, escapeLike(f.Module)+".%")
	}
	if prefix := normalizePathPrefix(f.PathPrefix); prefix != "" {
		where = append(where, "f.path LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(prefix)+"%")
	}
	return where, args
}

// --- Enumeration Endpoints ---

// Definitions is the primary persisted listing/filtering endpoint.
func (q *QueryBuilder) Definitions(filter DefinitionFilter, sort Sort, page Pagination) (*PagedResult[StoredDefinition], error) {
	return q.SearchDefinitions("", filter, sort, page)
}

// SearchDefinitions performs glob-style search on definition names. '*'
// is the wildcard (mapped to SQL '%'). A pattern containing a dot is
// matched against qualified names instead.
func (q *QueryBuilder) SearchDefinitions(pattern string, filter DefinitionFilter, sort Sort, page Pagination) (*PagedResult[StoredDefinition], error) {
	if q.store == nil {
		return nil, fmt.Errorf("search definitions: %w", ErrNoStore)
	}
	page = page.normalize()

	where, args := filter.where()
	// Pattern matching: escape literal % and _ first, then convert * to %
	if pattern != "" && pattern != "*" {
		col := "d.name"
		if strings.Contains(pattern, ".") {
			col = "d.qualified_name"
		}
		likePattern := strings.ReplaceAll(escapeLike(pattern), "*", "%")
		where = append(where, col+" LIKE ? ESCAPE '\\'")
		args = append(args, likePattern)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	// Count query
	countSQL := `SELECT COUNT(*) FROM definitions d JOIN files f ON d.file_id = f.id ` + whereClause
	var totalCount int
	if err := q.store.DB().QueryRow(countSQL, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("search definitions: count: %w", err)
	}

	dataSQL := fmt.Sprintf(
		`SELECT %s, f.path, f.module
		 FROM definitions d
		 JOIN files f ON d.file_id = f.id
		 %s
		 ORDER BY %s %s, d.id
		 LIMIT ? OFFSET ?`,
		prefixDefinitionCols("d"), whereClause,
		definitionSortColumn(sort.Field), sortDirection(sort.Order),
	)
	dataArgs := append(append([]any{}, args...), page.Limit, page.Offset)

	rows, err := q.store.DB().Query(dataSQL, dataArgs...)
	if err != nil {
		return nil, fmt.Errorf("search definitions: query: %w", err)
	}
	defer rows.Close()

	items := []StoredDefinition{}
	for rows.Next() {
		sd, err := scanStoredDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("search definitions: scan: %w", err)
		}
		items = append(items, sd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search definitions: rows: %w", err)
	}

	return &PagedResult[StoredDefinition]{Items: items, TotalCount: totalCount}, nil
}

// Files lists persisted files, optionally under a path prefix.
func (q *QueryBuilder) Files(pathPrefix string, sort Sort, page Pagination) (*PagedResult[store.File], error) {
	if q.store == nil {
		return nil, fmt.Errorf("files: %w", ErrNoStore)
	}
	page = page.normalize()

	var where []string
	var args []any
	if prefix := normalizePathPrefix(pathPrefix); prefix != "" {
		where = append(where, "path LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(prefix)+"%")
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var totalCount int
	if err := q.store.DB().QueryRow("SELECT COUNT(*) FROM files "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("files: count: %w", err)
	}

	orderCol := "path"
	if sort.Field == SortByName || sort.Field == SortByQualifiedName {
		orderCol = "module"
	}
	dataSQL := fmt.Sprintf(
		`SELECT id, path, module, is_package, hash, docstring, last_indexed FROM files %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		whereClause, orderCol, sortDirection(sort.Order),
	)
	dataArgs := append(append([]any{}, args...), page.Limit, page.Offset)

	rows, err := q.store.DB().Query(dataSQL, dataArgs...)
	if err != nil {
		return nil, fmt.Errorf("files: query: %w", err)
	}
	defer rows.Close()

	items := []store.File{}
	for rows.Next() {
		var f store.File
		var hash, doc sql.NullString
		if err := rows.Scan(&f.ID, &f.Path, &f.Module, &f.IsPackage, &hash, &doc, &f.LastIndexed); err != nil {
			return nil, fmt.Errorf("files: scan: %w", err)
		}
		f.Hash, f.Docstring = hash.String, doc.String
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("files: rows: %w", err)
	}

	return &PagedResult[store.File]{Items: items, TotalCount: totalCount}, nil
}

// --- Digest Endpoints ---

// ProjectSummary provides a high-level overview of the persisted project.
type ProjectSummary struct {
	FileCount       int
	PackageCount    int
	KindCounts      map[string]int
	ImportCount     int
	CallCount       int
	DiagnosticKinds map[string]int
}

// ProjectSummary returns a high-level overview of the persisted project.
func (q *QueryBuilder) ProjectSummary() (*ProjectSummary, error) {
	if q.store == nil {
		return nil, fmt.Errorf("project summary: %w", ErrNoStore)
	}
	db := q.store.DB()
	summary := &ProjectSummary{}

	err := db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(is_package), 0) FROM files`).Scan(&summary.FileCount, &summary.PackageCount)
	if err != nil {
		return nil, fmt.Errorf("project summary: files: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM imports`).Scan(&summary.ImportCount); err != nil {
		return nil, fmt.Errorf("project summary: imports: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM call_sites`).Scan(&summary.CallCount); err != nil {
		return nil, fmt.Errorf("project summary: calls: %w", err)
	}

	summary.KindCounts, err = q.groupCounts(`SELECT kind, COUNT(*) FROM definitions GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("project summary: kind counts: %w", err)
	}
	summary.DiagnosticKinds, err = q.groupCounts(`SELECT kind, COUNT(*) FROM diagnostics GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("project summary: diagnostic counts: %w", err)
	}
	return summary, nil
}

func (q *QueryBuilder) groupCounts(query string) (map[string]int, error) {
	rows, err := q.store.DB().Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

// --- Scan Helpers ---

// prefixDefinitionCols returns store.DefinitionCols with a table prefix applied.
func prefixDefinitionCols(prefix string) string {
	cols := strings.Split(store.DefinitionCols, ",")
	for i, c := range cols {
		cols[i] = prefix + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

// trailingScanner appends extra destinations after the ones its caller
// passes, so a fixed-column row scanner can read joined columns too.
type trailingScanner struct {
	sc    scanner
	extra []any
}

func (t trailingScanner) Scan(dest ...any) error {
	return t.sc.Scan(append(dest, t.extra...)...)
}

// scanStoredDefinition scans a row selected with prefixDefinitionCols
// followed by the file path and module.
func scanStoredDefinition(row scanner) (StoredDefinition, error) {
	var sd StoredDefinition
	d, err := store.ScanDefinitionRow(trailingScanner{sc: row, extra: []any{&sd.FilePath, &sd.Module}})
	if err != nil {
		return sd, err
	}
	sd.Definition = *d
	return sd, nil
}

// escapeLike escapes SQL LIKE special characters (% and _) with backslash.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
