package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// ContentHash returns the hex SHA-256 of a source unit.
func ContentHash(src []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(src))
}

// ComputeSignatureHash computes a deterministic hash from a definition's
// structural identity: name, kind, return annotation, modifiers, decorators,
// parameters and bases. Location and body changes do NOT affect the hash.
func ComputeSignatureHash(
	name, kind, returns string,
	modifiers []string,
	decorators []string,
	params []Parameter,
	bases []Base,
) string {
	h := sha256.New()

	fmt.Fprintf(h, "name:%s\n", name)
	fmt.Fprintf(h, "kind:%s\n", kind)
	fmt.Fprintf(h, "returns:%s\n", returns)

	// Modifiers are a set; sorted for determinism.
	sorted := make([]string, len(modifiers))
	copy(sorted, modifiers)
	sort.Strings(sorted)
	fmt.Fprintf(h, "modifiers:%s\n", strings.Join(sorted, ","))

	// Decorator order is significant.
	fmt.Fprintf(h, "decorators:%s\n", strings.Join(decorators, ","))

	ps := make([]Parameter, len(params))
	copy(ps, params)
	sort.Slice(ps, func(i, j int) bool { return ps[i].Ordinal < ps[j].Ordinal })
	for _, p := range ps {
		fmt.Fprintf(h, "param:%s:%d:%s:%s:%s\n", p.Name, p.Ordinal, p.Kind, p.Annotation, p.DefaultExpr)
	}

	bs := make([]Base, len(bases))
	copy(bs, bases)
	sort.Slice(bs, func(i, j int) bool { return bs[i].Ordinal < bs[j].Ordinal })
	for _, b := range bs {
		fmt.Fprintf(h, "base:%d:%s:%s\n", b.Ordinal, b.Keyword, b.Text)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}
