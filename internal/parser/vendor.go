package parser

import (
	"fmt"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

// Grammar is a pluggable vendor-specific format detector+producer (spec.md
// §4.1 step 4: "attempt vendor-specific grammars in a registered,
// priority-ordered list").
type Grammar interface {
	Name() string
	Detect(raw []byte) bool
	Parse(raw []byte) (map[string]interface{}, error)
}

// Registry holds vendor grammars in priority order; earlier entries are
// tried first.
type Registry struct {
	grammars []Grammar
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register appends g to the end of the priority order.
func (r *Registry) Register(g Grammar) { r.grammars = append(r.grammars, g) }

// DefaultRegistry ships with the CEF, LEEF and vendor-CSV grammars registered, matching
// the vendor formats named in spec.md §4.1.
var DefaultRegistry = buildDefaultRegistry()

func buildDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(cefGrammar{})
	r.Register(leefGrammar{})
	r.Register(csvGrammar{})
	return r
}

// tryVendor walks registry in priority order, returning the first grammar
// that both detects and successfully parses raw.
func tryVendor(raw []byte, registry *Registry) (Result, bool) {
	if registry == nil {
		return Result{}, false
	}
	for _, g := range registry.grammars {
		if !g.Detect(raw) {
			continue
		}
		fields, err := g.Parse(raw)
		if err != nil {
			continue
		}
		return Result{
			Fields:     fields,
			Status:     cim.StatusPartial,
			SourceType: SourceVendor,
			VendorName: g.Name(),
			Warning:    fmt.Sprintf("%s vendor grammar matched: fields mapped through the %s mapping profile", g.Name(), g.Name()),
		}, true
	}
	return Result{}, false
}
