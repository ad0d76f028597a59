package store

import (
	"encoding/json"
	"strings"
)

// marshalList converts []string to JSON text for storage.
func marshalList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(list)
	return string(b)
}

// unmarshalList converts JSON text back to []string.
func unmarshalList(s string) []string {
	if s == "" || s == "null" || s == "[]" {
		return nil
	}
	var list []string
	_ = json.Unmarshal([]byte(s), &list)
	return list
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface{ Scan(...any) error }

// prefixed qualifies each column in a comma-separated list with a table
// alias, for use in joins.
func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
