// Package ruledsl implements the rule DSL tree and its compiler to SQL
// against the events table (spec.md §4.4), grounded in the structured
// search/where/threshold/cardinality/sequence shape used by
// original_source/siem_unified_pipeline's v2 rule handlers (SearchDsl,
// SearchSection, TimeRange, Expr).
package ruledsl

// Comparator is one of the boolean leaf operators over a scalar field.
type Comparator string

const (
	CmpEq         Comparator = "eq"
	CmpNeq        Comparator = "neq"
	CmpContains   Comparator = "contains"
	CmpStartsWith Comparator = "starts_with"
	CmpEndsWith   Comparator = "ends_with"
	CmpRegex      Comparator = "regex"
	CmpIn         Comparator = "in"
	CmpNotIn      Comparator = "not_in"
	CmpGt         Comparator = "gt"
	CmpGte        Comparator = "gte"
	CmpLt         Comparator = "lt"
	CmpLte        Comparator = "lte"
	CmpBetween    Comparator = "between"
	CmpExists     Comparator = "exists"
	CmpNotExists  Comparator = "not_exists"
)

// BoolOp combines child expressions.
type BoolOp string

const (
	OpAnd BoolOp = "and"
	OpOr  BoolOp = "or"
	OpNot BoolOp = "not"
)

// Expr is a node in the where boolean expression tree. Exactly one of
// Bool/Leaf is set: Bool nodes carry Children, leaf nodes carry
// Field/Cmp/Value(s).
type Expr struct {
	Bool     BoolOp  `json:"bool,omitempty"`
	Children []*Expr `json:"children,omitempty"`

	Field  string        `json:"field,omitempty"`
	Cmp    Comparator    `json:"cmp,omitempty"`
	Value  interface{}   `json:"value,omitempty"`
	Values []interface{} `json:"values,omitempty"` // for in/not_in/between
}

// And builds an AND expression over children.
func And(children ...*Expr) *Expr { return &Expr{Bool: OpAnd, Children: children} }

// Or builds an OR expression over children.
func Or(children ...*Expr) *Expr { return &Expr{Bool: OpOr, Children: children} }

// Not negates a single child.
func Not(child *Expr) *Expr { return &Expr{Bool: OpNot, Children: []*Expr{child}} }

// Leaf builds a scalar comparison leaf.
func Leaf(field string, cmp Comparator, value interface{}) *Expr {
	return &Expr{Field: field, Cmp: cmp, Value: value}
}

// LeafValues builds an in/not_in/between leaf.
func LeafValues(field string, cmp Comparator, values ...interface{}) *Expr {
	return &Expr{Field: field, Cmp: cmp, Values: values}
}

// TimeRange selects events either relative to now or between absolute bounds.
type TimeRange struct {
	LastSeconds int64  `json:"last_seconds,omitempty"`
	From        string `json:"from,omitempty"` // RFC3339
	To          string `json:"to,omitempty"`
}

// SearchSection is the DSL's mandatory search clause.
type SearchSection struct {
	TimeRange TimeRange `json:"time_range"`
	Where     *Expr     `json:"where,omitempty"`
	TenantIDs []string  `json:"tenant_ids,omitempty"`
}

// Threshold turns a search into a count() >= N aggregation.
type Threshold struct {
	Count   int      `json:"count"`
	Window  int64    `json:"window_seconds"`
	GroupBy []string `json:"group_by,omitempty"`
}

// Cardinality turns a search into a uniqExact(field) >= N aggregation.
type Cardinality struct {
	Field   string   `json:"field"`
	Unique  int      `json:"unique"`
	Window  int64    `json:"window_seconds"`
	GroupBy []string `json:"group_by,omitempty"`
}

// SequenceStep is one ordered step of a Sequence rule.
type SequenceStep struct {
	Where *Expr `json:"where"`
}

// Sequence requires steps to occur in order within MaxGapSeconds of
// each other.
type Sequence struct {
	Steps         []SequenceStep `json:"steps"`
	MaxGapSeconds int64          `json:"max_gap_seconds"`
}

// DSL is the top-level rule predicate tree (spec.md §4.4).
type DSL struct {
	Version     string       `json:"version,omitempty"`
	Search      SearchSection `json:"search"`
	Threshold   *Threshold    `json:"threshold,omitempty"`
	Cardinality *Cardinality  `json:"cardinality,omitempty"`
	Sequence    *Sequence     `json:"sequence,omitempty"`
	AllowUnmapped bool        `json:"allow_unmapped,omitempty"`
}
