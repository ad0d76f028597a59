package outline

import (
	"fmt"
	"strings"
)

// HotspotResult is a callee text with its call counts across the
// persisted project.
type HotspotResult struct {
	Callee    string
	CallCount int // call sites with this callee
	FileCount int // distinct files calling it
}

// Hotspots returns the top-N most frequently called callee texts. Callees
// are compared as written: self.save and save are distinct.
// topN of 0 returns empty list. Negative returns error.
func (q *QueryBuilder) Hotspots(topN int) ([]*HotspotResult, error) {
	if q.store == nil {
		return nil, fmt.Errorf("hotspots: %w", ErrNoStore)
	}
	if topN < 0 {
		return nil, fmt.Errorf("hotspots: topN must be non-negative, got %d", topN)
	}
	if topN == 0 {
		return []*HotspotResult{}, nil
	}

	rows, err := q.store.DB().Query(
		`SELECT callee, COUNT(*) AS call_count, COUNT(DISTINCT file_id) AS file_count
		 FROM call_sites
		 GROUP BY callee
		 ORDER BY call_count DESC, callee
		 LIMIT ?`, topN)
	if err != nil {
		return nil, fmt.Errorf("hotspots: query: %w", err)
	}
	defer rows.Close()

	items := []*HotspotResult{}
	for rows.Next() {
		var hr HotspotResult
		if err := rows.Scan(&hr.Callee, &hr.CallCount, &hr.FileCount); err != nil {
			return nil, fmt.Errorf("hotspots: scan: %w", err)
		}
		items = append(items, &hr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hotspots: rows: %w", err)
	}
	return items, nil
}

// UncalledFunctions returns persisted functions whose name is never the
// callee of a call site, either bare or as the last attribute of a dotted
// callee. Dunder methods and properties are excluded since they are
// invoked implicitly. The match is textual, so a name shared by two
// functions hides both once either is called.
func (q *QueryBuilder) UncalledFunctions(filter DefinitionFilter, sort Sort, page Pagination) (*PagedResult[StoredDefinition], error) {
	if q.store == nil {
		return nil, fmt.Errorf("uncalled functions: %w", ErrNoStore)
	}
	page = page.normalize()

	where, args := filter.where()
	where = append(where,
		"d.kind = 'function'",
		`d.name NOT LIKE '\_\_%\_\_' ESCAPE '\'`,
		"NOT EXISTS (SELECT 1 FROM json_each(d.modifiers) WHERE json_each.value = 'property')",
		`NOT EXISTS (SELECT 1 FROM call_sites c
		   WHERE c.callee = d.name OR substr(c.callee, -length(d.name) - 1) = '.' || d.name)`,
	)
	whereClause := "WHERE " + strings.Join(where, " AND ")

	var totalCount int
	countSQL := `SELECT COUNT(*) FROM definitions d JOIN files f ON d.file_id = f.id ` + whereClause
	if err := q.store.DB().QueryRow(countSQL, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("uncalled functions: count: %w", err)
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
		return nil, fmt.Errorf("uncalled functions: query: %w", err)
	}
	defer rows.Close()

	items := []StoredDefinition{}
	for rows.Next() {
		sd, err := scanStoredDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("uncalled functions: scan: %w", err)
		}
		items = append(items, sd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("uncalled functions: rows: %w", err)
	}
	return &PagedResult[StoredDefinition]{Items: items, TotalCount: totalCount}, nil
}
