package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CommitBatch replaces everything stored for batch.File.Path with the
// batch contents within a single transaction and returns the new file ID.
// Fake (negative) IDs are remapped to real IDs, and all FK references
// within the batch are rewritten using the fakeToReal mapping.
//
// Insert order respects FK dependencies:
//  1. File
//  2. Scopes (parents precede children)
//  3. Definitions (depend on scopes)
//  4. Parameters, decorators, bases (depend on definitions)
//  5. Imports, call sites, assignments, diagnostics
func (s *Store) CommitBatch(batch *Batch) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRow("SELECT id FROM files WHERE path = ?", batch.File.Path).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return 0, fmt.Errorf("commit batch: lookup file: %w", err)
	default:
		if err := deleteFileDataTx(tx, existing); err != nil {
			return 0, fmt.Errorf("commit batch: %w", err)
		}
	}

	f := batch.File
	if f.LastIndexed.IsZero() {
		f.LastIndexed = time.Now()
	}
	fileID, err := insertFileTx(tx, &f)
	if err != nil {
		return 0, fmt.Errorf("commit batch: file %q: %w", f.Path, err)
	}

	fakeToReal := make(map[int64]int64)
	remap := func(id int64) int64 {
		if id < 0 {
			return fakeToReal[id]
		}
		return id
	}

	// 2. Scopes
	for _, sc := range batch.Scopes {
		sc.FileID = fileID
		if sc.ParentScopeID != nil {
			realID := remap(*sc.ParentScopeID)
			sc.ParentScopeID = &realID
		}
		realID, err := insertScopeTx(tx, &sc)
		if err != nil {
			return 0, fmt.Errorf("commit batch: scope %q: %w", sc.QualifiedName, err)
		}
		fakeToReal[sc.ID] = realID
	}

	// 3. Definitions
	for _, d := range batch.Definitions {
		d.FileID = fileID
		d.ScopeID = remap(d.ScopeID)
		if d.BodyScopeID != nil {
			realID := remap(*d.BodyScopeID)
			d.BodyScopeID = &realID
		}
		realID, err := insertDefinitionTx(tx, &d)
		if err != nil {
			return 0, fmt.Errorf("commit batch: definition %q: %w", d.QualifiedName, err)
		}
		fakeToReal[d.ID] = realID
	}

	// 4. Definition children
	for _, p := range batch.Parameters {
		p.DefinitionID = remap(p.DefinitionID)
		if _, err := tx.Exec(
			`INSERT INTO parameters (definition_id, ordinal, name, kind, annotation, default_expr)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.DefinitionID, p.Ordinal, p.Name, p.Kind, p.Annotation, p.DefaultExpr,
		); err != nil {
			return 0, fmt.Errorf("commit batch: parameter %q: %w", p.Name, err)
		}
	}
	for _, d := range batch.Decorators {
		d.DefinitionID = remap(d.DefinitionID)
		if _, err := tx.Exec(
			`INSERT INTO decorators (definition_id, ordinal, name, text, args, is_call, line)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.DefinitionID, d.Ordinal, d.Name, d.Text, marshalList(d.Args), d.IsCall, d.Line,
		); err != nil {
			return 0, fmt.Errorf("commit batch: decorator %q: %w", d.Name, err)
		}
	}
	for _, b := range batch.Bases {
		b.DefinitionID = remap(b.DefinitionID)
		if _, err := tx.Exec(
			"INSERT INTO bases (definition_id, ordinal, keyword, text, resolved) VALUES (?, ?, ?, ?, ?)",
			b.DefinitionID, b.Ordinal, b.Keyword, b.Text, b.Resolved,
		); err != nil {
			return 0, fmt.Errorf("commit batch: base %q: %w", b.Text, err)
		}
	}

	// 5. Per-file facts
	for _, imp := range batch.Imports {
		if _, err := tx.Exec(
			`INSERT INTO imports (file_id, scope, module, symbol, alias, level, wildcard, line, col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, imp.Scope, imp.Module, imp.Symbol, imp.Alias, imp.Level, imp.Wildcard, imp.Line, imp.Col,
		); err != nil {
			return 0, fmt.Errorf("commit batch: import %q: %w", imp.Module, err)
		}
	}
	for _, c := range batch.CallSites {
		if _, err := tx.Exec(
			`INSERT INTO call_sites (file_id, scope_id, scope, callee, args, start_line, start_col, end_line, end_col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, remap(c.ScopeID), c.Scope, c.Callee, marshalList(c.Args),
			c.StartLine, c.StartCol, c.EndLine, c.EndCol,
		); err != nil {
			return 0, fmt.Errorf("commit batch: call %q: %w", c.Callee, err)
		}
	}
	for _, a := range batch.Assignments {
		if _, err := tx.Exec(
			`INSERT INTO assignments (file_id, scope_id, scope, targets, op, annotation, value, literal, is_constant, line, col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, remap(a.ScopeID), a.Scope, marshalList(a.Targets), a.Op, a.Annotation, a.Value,
			a.Literal, a.IsConstant, a.Line, a.Col,
		); err != nil {
			return 0, fmt.Errorf("commit batch: assignment: %w", err)
		}
	}
	for _, d := range batch.Diagnostics {
		if _, err := tx.Exec(
			`INSERT INTO diagnostics (file_id, kind, message, line, col, end_line, end_col)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fileID, d.Kind, d.Message, d.Line, d.Col, d.EndLine, d.EndCol,
		); err != nil {
			return 0, fmt.Errorf("commit batch: diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return fileID, nil
}

// --- Transaction-scoped insert helpers ---

func insertFileTx(tx *sql.Tx, f *File) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO files (path, module, is_package, hash, docstring, last_indexed) VALUES (?, ?, ?, ?, ?, ?)",
		f.Path, f.Module, f.IsPackage, f.Hash, f.Docstring, f.LastIndexed,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertScopeTx(tx *sql.Tx, sc *Scope) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO scopes (file_id, parent_scope_id, kind, name, qualified_name, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.FileID, sc.ParentScopeID, sc.Kind, sc.Name, sc.QualifiedName,
		sc.StartLine, sc.StartCol, sc.EndLine, sc.EndCol,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertDefinitionTx(tx *sql.Tx, d *Definition) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO definitions (file_id, scope_id, body_scope_id, kind, name, qualified_name, docstring,
			returns, type_params, modifiers, signature_hash, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.FileID, d.ScopeID, d.BodyScopeID, d.Kind, d.Name, d.QualifiedName, d.Docstring,
		d.Returns, d.TypeParams, marshalList(d.Modifiers), d.SignatureHash,
		d.StartLine, d.StartCol, d.EndLine, d.EndCol,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
