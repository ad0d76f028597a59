package runtime

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/outline/internal/diag"
	"github.com/jward/outline/internal/model"
	"github.com/jward/outline/internal/store"
)

// Host functions over a model.Index. Entities are converted to Risor maps
// with primitive values; scripts never see Go pointers.

func makeModuleFn(ix *model.Index) *object.Builtin {
	return object.NewBuiltin("module", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("module", 0, len(args))
		}
		m := ix.Module()
		return object.NewMap(map[string]object.Object{
			"name":       object.NewString(m.Name),
			"path":       object.NewString(m.Path),
			"is_package": object.NewBool(m.IsPackage),
			"docstring":  object.NewString(m.Docstring),
		})
	})
}

func makeClassesFn(ix *model.Index) *object.Builtin {
	return object.NewBuiltin("classes", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("classes", 0, len(args))
		}
		out := make([]object.Object, 0, len(ix.Classes()))
		for _, c := range ix.Classes() {
			out = append(out, classToMap(c))
		}
		return object.NewList(out)
	})
}

func makeFunctionsFn(ix *model.Index) *object.Builtin {
	return object.NewBuiltin("functions", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("functions", 0, len(args))
		}
		out := make([]object.Object, 0, len(ix.Functions()))
		for _, fn := range ix.Functions() {
			out = append(out, functionToMap(fn))
		}
		return object.NewList(out)
	})
}

func makeImportsFn(ix *model.Index) *object.Builtin {
	return object.NewBuiltin("imports", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("imports", 0, len(args))
		}
		out := make([]object.Object, 0, len(ix.Imports()))
		for _, imp := range ix.Imports() {
			m := map[string]object.Object{
				"module":   object.NewString(imp.ModulePath()),
				"symbol":   object.NewString(imp.Symbol),
				"alias":    object.NewString(imp.Alias),
				"bound":    object.NewString(imp.BoundName()),
				"level":    object.NewInt(int64(imp.Level)),
				"wildcard": object.NewBool(imp.Wildcard),
				"scope":    object.NewString(imp.Scope),
				"line":     object.NewInt(int64(imp.Span.Start.Line)),
			}
			if abs, err := ix.ResolveRelative(imp); err == nil {
				m["target"] = object.NewString(abs)
			} else {
				m["target"] = object.Nil
			}
			out = append(out, object.NewMap(m))
		}
		return object.NewList(out)
	})
}

// calls() returns every call site; calls(qname) those directly in the
// named scope ("" for module level).
func makeCallsFn(ix *model.Index) *object.Builtin {
	return object.NewBuiltin("calls", func(ctx context.Context, args ...object.Object) object.Object {
		var calls []*model.CallSite
		switch len(args) {
		case 0:
			calls = ix.Calls()
		case 1:
			qname, err := toString(args[0])
			if err != nil {
				return object.Errorf("calls: %v", err)
			}
			in, ok := ix.CallsIn(qname)
			if !ok {
				return object.Errorf("calls: no scope named %q", qname)
			}
			calls = in
		default:
			return object.Errorf("calls: expected 0 or 1 arguments, got %d", len(args))
		}
		out := make([]object.Object, 0, len(calls))
		for _, c := range calls {
			out = append(out, object.NewMap(map[string]object.Object{
				"callee": object.NewString(c.Callee),
				"args":   stringList(c.Args),
				"scope":  object.NewString(c.Scope),
				"line":   object.NewInt(int64(c.Span.Start.Line)),
				"col":    object.NewInt(int64(c.Span.Start.Col)),
			}))
		}
		return object.NewList(out)
	})
}

func makeConstantsFn(ix *model.Index) *object.Builtin {
	return object.NewBuiltin("constants", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("constants", 0, len(args))
		}
		out := make([]object.Object, 0, len(ix.Constants()))
		for _, c := range ix.Constants() {
			out = append(out, object.NewMap(map[string]object.Object{
				"name":  object.NewString(c.Name),
				"value": object.NewString(c.Value),
				"line":  object.NewInt(int64(c.Span.Start.Line)),
			}))
		}
		return object.NewList(out)
	})
}

func makeLookupFn(ix *model.Index) *object.Builtin {
	return object.NewBuiltin("lookup", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("lookup", 1, len(args))
		}
		qname, err := toString(args[0])
		if err != nil {
			return object.Errorf("lookup: %v", err)
		}
		d, ok := ix.Lookup(qname)
		if !ok {
			return object.Nil
		}
		return definitionToMap(d)
	})
}

func makeChildrenFn(ix *model.Index) *object.Builtin {
	return object.NewBuiltin("children", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("children", 1, len(args))
		}
		qname, err := toString(args[0])
		if err != nil {
			return object.Errorf("children: %v", err)
		}
		kids, ok := ix.Children(qname)
		if !ok {
			return object.Errorf("children: no scope named %q", qname)
		}
		out := make([]object.Object, 0, len(kids))
		for _, d := range kids {
			out = append(out, definitionToMap(d))
		}
		return object.NewList(out)
	})
}

func makeDiagnosticsFn(ix *model.Index) *object.Builtin {
	return object.NewBuiltin("diagnostics", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("diagnostics", 0, len(args))
		}
		ds := ix.Module().Diagnostics
		out := make([]object.Object, 0, len(ds))
		for _, d := range ds {
			out = append(out, diagnosticToMap(d))
		}
		return object.NewList(out)
	})
}

// reporter collects the findings of one script run.
type reporter struct {
	rule     string
	ix       *model.Index
	findings []Finding
}

// report(message) or report(message, qname). A qname that names a
// definition anchors the finding at its first line.
func makeReportFn(rep *reporter) *object.Builtin {
	return object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("report: expected 1 or 2 arguments, got %d", len(args))
		}
		msg, err := toString(args[0])
		if err != nil {
			return object.Errorf("report: %v", err)
		}
		f := Finding{
			Rule:    rep.rule,
			Module:  rep.ix.Name(),
			Path:    rep.ix.Module().Path,
			Message: msg,
		}
		if len(args) == 2 {
			qname, err := toString(args[1])
			if err != nil {
				return object.Errorf("report: %v", err)
			}
			f.QualifiedName = qname
			if d, ok := rep.ix.Lookup(qname); ok {
				f.Line = d.Position().Start.Line
			}
		}
		rep.findings = append(rep.findings, f)
		return object.Nil
	})
}

// makeDBQueryFn creates a db_query bridge that executes read-only SQL.
// Returns a list of maps (column name → value). The query runs on a
// dedicated connection with query_only set, so stacked statements cannot
// write either.
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		sqlStr, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}

		// Only allow SELECT statements.
		trimmed := strings.TrimSpace(strings.ToUpper(sqlStr))
		if !strings.HasPrefix(trimmed, "SELECT") {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}

		var queryArgs []any
		for _, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.Int:
				queryArgs = append(queryArgs, v.Value())
			case *object.Float:
				queryArgs = append(queryArgs, v.Value())
			case *object.String:
				queryArgs = append(queryArgs, v.Value())
			case *object.Bool:
				queryArgs = append(queryArgs, v.Value())
			case *object.NilType:
				queryArgs = append(queryArgs, nil)
			default:
				queryArgs = append(queryArgs, fmt.Sprintf("%v", arg))
			}
		}

		conn, err := s.DB().Conn(ctx)
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		defer conn.Close()
		if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			return object.Errorf("db_query: %v", err)
		}
		defer func() {
			if _, err := conn.ExecContext(context.Background(), "PRAGMA query_only = OFF"); err != nil {
				// Never hand a read-only connection back to the pool.
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
		}()

		results, err := readRows(ctx, conn, sqlStr, queryArgs)
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		return object.NewList(results)
	})
}

func readRows(ctx context.Context, conn *sql.Conn, query string, args []any) ([]object.Object, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	results := []object.Object{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]object.Object, len(cols))
		for i, col := range cols {
			row[col] = sqlValueToObject(values[i])
		}
		results = append(results, object.NewMap(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return results, nil
}

// --- Conversions ---

func definitionToMap(d model.Definition) object.Object {
	switch d := d.(type) {
	case *model.ClassDef:
		return classToMap(d)
	case *model.FunctionDef:
		return functionToMap(d)
	}
	return object.Nil
}

func classToMap(c *model.ClassDef) object.Object {
	var methods []string
	for _, fn := range c.Methods() {
		methods = append(methods, fn.Name)
	}
	keywords := make(map[string]object.Object, len(c.Keywords))
	for _, kw := range c.Keywords {
		keywords[kw.Name] = object.NewString(kw.Value)
	}
	return object.NewMap(map[string]object.Object{
		"kind":           object.NewString(string(model.KindClass)),
		"name":           object.NewString(c.Name),
		"qualified_name": object.NewString(c.QualifiedName),
		"bases":          stringList(c.BaseNames()),
		"keywords":       object.NewMap(keywords),
		"decorators":     stringList(c.DecoratorNames()),
		"methods":        stringList(methods),
		"docstring":      object.NewString(c.Docstring),
		"line":           object.NewInt(int64(c.Span.Start.Line)),
		"end_line":       object.NewInt(int64(c.Span.End.Line)),
	})
}

func functionToMap(fn *model.FunctionDef) object.Object {
	params := make([]object.Object, 0, len(fn.Params))
	for _, p := range fn.Params {
		params = append(params, object.NewMap(map[string]object.Object{
			"name":       object.NewString(p.Name),
			"kind":       object.NewString(string(p.Kind)),
			"annotation": object.NewString(p.Annotation),
			"default":    object.NewString(p.Default),
		}))
	}
	return object.NewMap(map[string]object.Object{
		"kind":           object.NewString(string(model.KindFunction)),
		"name":           object.NewString(fn.Name),
		"qualified_name": object.NewString(fn.QualifiedName),
		"params":         object.NewList(params),
		"returns":        object.NewString(fn.Returns),
		"decorators":     stringList(fn.DecoratorNames()),
		"is_async":       object.NewBool(fn.IsAsync),
		"is_method":      object.NewBool(fn.IsMethod),
		"is_static":      object.NewBool(fn.IsStatic),
		"is_classmethod": object.NewBool(fn.IsClassMethod),
		"is_property":    object.NewBool(fn.IsProperty),
		"docstring":      object.NewString(fn.Docstring),
		"line":           object.NewInt(int64(fn.Span.Start.Line)),
		"end_line":       object.NewInt(int64(fn.Span.End.Line)),
	})
}

func diagnosticToMap(d diag.Diagnostic) object.Object {
	return object.NewMap(map[string]object.Object{
		"kind":    object.NewString(string(d.Kind)),
		"message": object.NewString(d.Msg),
		"line":    object.NewInt(int64(d.Span.Start.Line)),
	})
}

func stringList(ss []string) object.Object {
	out := make([]object.Object, len(ss))
	for i, s := range ss {
		out[i] = object.NewString(s)
	}
	return object.NewList(out)
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}
