package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

const fileCols = "id, path, module, is_package, hash, docstring, last_indexed"

func scanFile(sc rowScanner) (*File, error) {
	f := &File{}
	var hash, doc sql.NullString
	if err := sc.Scan(&f.ID, &f.Path, &f.Module, &f.IsPackage, &hash, &doc, &f.LastIndexed); err != nil {
		return nil, err
	}
	f.Hash, f.Docstring = hash.String, doc.String
	return f, nil
}

// FileByPath returns the stored file for path, or nil when none is stored.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// FilesByModule returns the files stored under a module label.
func (s *Store) FilesByModule(module string) ([]*File, error) {
	return s.queryFiles("SELECT "+fileCols+" FROM files WHERE module = ? ORDER BY path", module)
}

// Files returns every stored file ordered by path.
func (s *Store) Files() ([]*File, error) {
	return s.queryFiles("SELECT " + fileCols + " FROM files ORDER BY path")
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Scope operations ---

func (s *Store) ScopesByFile(fileID int64) ([]*Scope, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, parent_scope_id, kind, name, qualified_name, start_line, start_col, end_line, end_col
		 FROM scopes WHERE file_id = ? ORDER BY id`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("scopes by file: %w", err)
	}
	defer rows.Close()
	var scopes []*Scope
	for rows.Next() {
		sc := &Scope{}
		if err := rows.Scan(&sc.ID, &sc.FileID, &sc.ParentScopeID, &sc.Kind, &sc.Name, &sc.QualifiedName,
			&sc.StartLine, &sc.StartCol, &sc.EndLine, &sc.EndCol); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}

// --- Definition operations ---

// DefinitionCols is the column list for definition queries.
const DefinitionCols = `id, file_id, scope_id, body_scope_id, kind, name, qualified_name, docstring,
	returns, type_params, modifiers, signature_hash, start_line, start_col, end_line, end_col`

// ScanDefinitionRow scans a single row selected with DefinitionCols.
func ScanDefinitionRow(sc rowScanner) (*Definition, error) {
	d := &Definition{}
	var doc, returns, tparams, mods sql.NullString
	err := sc.Scan(
		&d.ID, &d.FileID, &d.ScopeID, &d.BodyScopeID, &d.Kind, &d.Name, &d.QualifiedName, &doc,
		&returns, &tparams, &mods, &d.SignatureHash, &d.StartLine, &d.StartCol, &d.EndLine, &d.EndCol,
	)
	if err != nil {
		return nil, err
	}
	d.Docstring, d.Returns, d.TypeParams = doc.String, returns.String, tparams.String
	d.Modifiers = unmarshalList(mods.String)
	return d, nil
}

func (s *Store) queryDefinitions(query string, args ...any) ([]*Definition, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var defs []*Definition
	for rows.Next() {
		d, err := ScanDefinitionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// DefinitionsByFile returns the file's definitions in preorder.
func (s *Store) DefinitionsByFile(fileID int64) ([]*Definition, error) {
	return s.queryDefinitions("SELECT "+DefinitionCols+" FROM definitions WHERE file_id = ? ORDER BY id", fileID)
}

func (s *Store) DefinitionsByName(name string) ([]*Definition, error) {
	return s.queryDefinitions("SELECT "+DefinitionCols+" FROM definitions WHERE name = ? ORDER BY id", name)
}

func (s *Store) DefinitionsByKind(kind string) ([]*Definition, error) {
	return s.queryDefinitions("SELECT "+DefinitionCols+" FROM definitions WHERE kind = ? ORDER BY id", kind)
}

// DefinitionsByQualifiedName returns the definitions named qname within the
// given module label, in source order.
func (s *Store) DefinitionsByQualifiedName(module, qname string) ([]*Definition, error) {
	return s.queryDefinitions(
		"SELECT "+prefixed("d", DefinitionCols)+` FROM definitions d JOIN files f ON f.id = d.file_id
		 WHERE f.module = ? AND d.qualified_name = ? ORDER BY d.id`, module, qname,
	)
}

// DefinitionsInScope returns the definitions directly inside a scope.
func (s *Store) DefinitionsInScope(scopeID int64) ([]*Definition, error) {
	return s.queryDefinitions("SELECT "+DefinitionCols+" FROM definitions WHERE scope_id = ? ORDER BY id", scopeID)
}

// --- Definition children ---

func (s *Store) Parameters(definitionID int64) ([]*Parameter, error) {
	rows, err := s.db.Query(
		`SELECT id, definition_id, ordinal, name, kind, annotation, default_expr
		 FROM parameters WHERE definition_id = ? ORDER BY ordinal`, definitionID,
	)
	if err != nil {
		return nil, fmt.Errorf("parameters: %w", err)
	}
	defer rows.Close()
	var params []*Parameter
	for rows.Next() {
		p := &Parameter{}
		var ann, def sql.NullString
		if err := rows.Scan(&p.ID, &p.DefinitionID, &p.Ordinal, &p.Name, &p.Kind, &ann, &def); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		p.Annotation, p.DefaultExpr = ann.String, def.String
		params = append(params, p)
	}
	return params, rows.Err()
}

func (s *Store) Decorators(definitionID int64) ([]*Decorator, error) {
	rows, err := s.db.Query(
		`SELECT id, definition_id, ordinal, name, text, args, is_call, line
		 FROM decorators WHERE definition_id = ? ORDER BY ordinal`, definitionID,
	)
	if err != nil {
		return nil, fmt.Errorf("decorators: %w", err)
	}
	defer rows.Close()
	var decos []*Decorator
	for rows.Next() {
		d := &Decorator{}
		var args sql.NullString
		if err := rows.Scan(&d.ID, &d.DefinitionID, &d.Ordinal, &d.Name, &d.Text, &args, &d.IsCall, &d.Line); err != nil {
			return nil, fmt.Errorf("scan decorator: %w", err)
		}
		d.Args = unmarshalList(args.String)
		decos = append(decos, d)
	}
	return decos, rows.Err()
}

// DefinitionsDecoratedBy returns definitions carrying a decorator with the
// given name.
func (s *Store) DefinitionsDecoratedBy(name string) ([]*Definition, error) {
	return s.queryDefinitions(
		"SELECT DISTINCT "+prefixed("d", DefinitionCols)+` FROM definitions d JOIN decorators x ON x.definition_id = d.id
		 WHERE x.name = ? ORDER BY d.id`, name,
	)
}

func (s *Store) Bases(definitionID int64) ([]*Base, error) {
	return s.queryBases("SELECT id, definition_id, ordinal, keyword, text, resolved FROM bases WHERE definition_id = ? ORDER BY ordinal", definitionID)
}

// BasesNaming returns positional bases whose text or resolved name equals
// name, across all files.
func (s *Store) BasesNaming(name string) ([]*Base, error) {
	return s.queryBases(
		`SELECT id, definition_id, ordinal, keyword, text, resolved FROM bases
		 WHERE (keyword IS NULL OR keyword = '') AND (text = ? OR resolved = ?) ORDER BY id`, name, name,
	)
}

func (s *Store) queryBases(query string, args ...any) ([]*Base, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bases: %w", err)
	}
	defer rows.Close()
	var bases []*Base
	for rows.Next() {
		b := &Base{}
		var kw, resolved sql.NullString
		if err := rows.Scan(&b.ID, &b.DefinitionID, &b.Ordinal, &kw, &b.Text, &resolved); err != nil {
			return nil, fmt.Errorf("scan base: %w", err)
		}
		b.Keyword, b.Resolved = kw.String, resolved.String
		bases = append(bases, b)
	}
	return bases, rows.Err()
}

// DefinitionByID returns a definition, or nil when the ID is unknown.
func (s *Store) DefinitionByID(id int64) (*Definition, error) {
	d, err := ScanDefinitionRow(s.db.QueryRow("SELECT "+DefinitionCols+" FROM definitions WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("definition by id: %w", err)
	}
	return d, nil
}

// --- Per-file facts ---

func (s *Store) ImportsByFile(fileID int64) ([]*Import, error) {
	return s.queryImports("SELECT id, file_id, scope, module, symbol, alias, level, wildcard, line, col FROM imports WHERE file_id = ? ORDER BY id", fileID)
}

// ImportersOf returns imports whose module path, as written, equals module.
func (s *Store) ImportersOf(module string) ([]*Import, error) {
	return s.queryImports("SELECT id, file_id, scope, module, symbol, alias, level, wildcard, line, col FROM imports WHERE module = ? ORDER BY id", module)
}

func (s *Store) queryImports(query string, args ...any) ([]*Import, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()
	var imps []*Import
	for rows.Next() {
		imp := &Import{}
		var scope, symbol, alias sql.NullString
		if err := rows.Scan(&imp.ID, &imp.FileID, &scope, &imp.Module, &symbol, &alias,
			&imp.Level, &imp.Wildcard, &imp.Line, &imp.Col); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imp.Scope, imp.Symbol, imp.Alias = scope.String, symbol.String, alias.String
		imps = append(imps, imp)
	}
	return imps, rows.Err()
}

const callCols = "id, file_id, scope_id, scope, callee, args, start_line, start_col, end_line, end_col"

func (s *Store) CallSitesByFile(fileID int64) ([]*CallSite, error) {
	return s.queryCalls("SELECT "+callCols+" FROM call_sites WHERE file_id = ? ORDER BY id", fileID)
}

// CallSitesByCallee returns every call whose callee text equals callee.
func (s *Store) CallSitesByCallee(callee string) ([]*CallSite, error) {
	return s.queryCalls("SELECT "+callCols+" FROM call_sites WHERE callee = ? ORDER BY file_id, id", callee)
}

func (s *Store) queryCalls(query string, args ...any) ([]*CallSite, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query call sites: %w", err)
	}
	defer rows.Close()
	var calls []*CallSite
	for rows.Next() {
		c := &CallSite{}
		var scope, args sql.NullString
		if err := rows.Scan(&c.ID, &c.FileID, &c.ScopeID, &scope, &c.Callee, &args,
			&c.StartLine, &c.StartCol, &c.EndLine, &c.EndCol); err != nil {
			return nil, fmt.Errorf("scan call site: %w", err)
		}
		c.Scope = scope.String
		c.Args = unmarshalList(args.String)
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

func (s *Store) AssignmentsByFile(fileID int64) ([]*Assignment, error) {
	return s.queryAssignments("SELECT id, file_id, scope_id, scope, targets, op, annotation, value, literal, is_constant, line, col FROM assignments WHERE file_id = ? ORDER BY id", fileID)
}

// ConstantsByFile returns the module-level literal assignments of a file.
func (s *Store) ConstantsByFile(fileID int64) ([]*Assignment, error) {
	return s.queryAssignments("SELECT id, file_id, scope_id, scope, targets, op, annotation, value, literal, is_constant, line, col FROM assignments WHERE file_id = ? AND is_constant ORDER BY id", fileID)
}

func (s *Store) queryAssignments(query string, args ...any) ([]*Assignment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()
	var out []*Assignment
	for rows.Next() {
		a := &Assignment{}
		var scope, targets, ann, value sql.NullString
		if err := rows.Scan(&a.ID, &a.FileID, &a.ScopeID, &scope, &targets, &a.Op, &ann, &value,
			&a.Literal, &a.IsConstant, &a.Line, &a.Col); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.Scope, a.Annotation, a.Value = scope.String, ann.String, value.String
		a.Targets = unmarshalList(targets.String)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DiagnosticsByFile(fileID int64) ([]*Diagnostic, error) {
	rows, err := s.db.Query(
		"SELECT id, file_id, kind, message, line, col, end_line, end_col FROM diagnostics WHERE file_id = ? ORDER BY id", fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by file: %w", err)
	}
	defer rows.Close()
	var out []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		var msg sql.NullString
		if err := rows.Scan(&d.ID, &d.FileID, &d.Kind, &msg, &d.Line, &d.Col, &d.EndLine, &d.EndCol); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Message = msg.String
		out = append(out, d)
	}
	return out, rows.Err()
}
