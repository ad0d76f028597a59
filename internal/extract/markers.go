package extract

import "strings"

// Markers lists the decorator names that set FunctionDef flags. Names are
// compared against the decorator expression with call arguments stripped.
type Markers struct {
	Static      []string `toml:"static"`
	ClassMethod []string `toml:"classmethod"`
	Property    []string `toml:"property"`
}

// DefaultMarkers returns the builtin marker names.
func DefaultMarkers() Markers {
	return Markers{
		Static:      []string{"staticmethod"},
		ClassMethod: []string{"classmethod"},
		Property:    []string{"property", "cached_property", "functools.cached_property"},
	}
}

// propertyAccessors are the attribute suffixes of a property's setter,
// getter and deleter decorators (@name.setter).
var propertyAccessors = []string{".setter", ".getter", ".deleter"}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

func (m Markers) isStatic(name string) bool      { return contains(m.Static, name) }
func (m Markers) isClassMethod(name string) bool { return contains(m.ClassMethod, name) }

func (m Markers) isProperty(name string) bool {
	if contains(m.Property, name) {
		return true
	}
	for _, suffix := range propertyAccessors {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return true
		}
	}
	return false
}
