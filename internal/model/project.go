package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicateModule is returned by Project.Add for a label already present.
var ErrDuplicateModule = errors.New("module already in project")

// Project aggregates per-module indexes. Writes are serialized; each module
// label is written once unless explicitly replaced.
type Project struct {
	mu      sync.RWMutex
	modules map[string]*Index
}

func NewProject() *Project {
	return &Project{modules: make(map[string]*Index)}
}

// Add inserts ix under its module label.
func (p *Project) Add(ix *Index) error {
	name := ix.Name()
	if name == "" {
		return fmt.Errorf("add module %q: empty module label", ix.Module().Path)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.modules[name]; ok {
		return fmt.Errorf("add module %s: %w", name, ErrDuplicateModule)
	}
	p.modules[name] = ix
	return nil
}

// Replace inserts ix, discarding any previous index under the same label.
// Re-analysis of a unit replaces its model wholesale.
func (p *Project) Replace(ix *Index) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modules[ix.Name()] = ix
}

// Remove drops a module by label.
func (p *Project) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.modules, name)
}

// Module returns the index of one module.
func (p *Project) Module(name string) (*Index, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ix, ok := p.modules[name]
	return ix, ok
}

// Modules returns all module indexes sorted by label.
func (p *Project) Modules() []*Index {
	p.mu.RLock()
	out := make([]*Index, 0, len(p.modules))
	for _, ix := range p.modules {
		out = append(out, ix)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (p *Project) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.modules)
}

// Lookup resolves a fully qualified name such as pkg.mod.Class.method. The
// longest module label that prefixes the name is tried first.
func (p *Project) Lookup(fq string) (Definition, *Index, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	parts := strings.Split(fq, ".")
	for i := len(parts) - 1; i > 0; i-- {
		ix, ok := p.modules[strings.Join(parts[:i], ".")]
		if !ok {
			continue
		}
		if d, ok := ix.Lookup(strings.Join(parts[i:], ".")); ok {
			return d, ix, true
		}
	}
	return nil, nil, false
}
