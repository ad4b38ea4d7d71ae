package ruledsl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/darkermemo/sim6-sub001/internal/apperrors"
	"github.com/darkermemo/sim6-sub001/internal/cim"
	"github.com/darkermemo/sim6-sub001/internal/rule"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]{0,127}$`)

// Result is a compiled rule query plus any warnings raised along the way
// (e.g. unmapped identifiers tolerated under AllowUnmapped).
type Result struct {
	SQL      string
	Args     []interface{}
	Warnings []string
}

type compiler struct {
	args          []interface{}
	warnings      []string
	allowUnmapped bool
}

func (c *compiler) placeholder(v interface{}) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

// resolveIdentifier maps a DSL field name to a SQL column reference: a
// direct CIM column, or a custom_fields JSONB accessor. numeric is true for
// numeric comparators, which cast a custom_fields accessor to ::numeric.
func (c *compiler) resolveIdentifier(field string, numeric bool) (string, error) {
	if cim.IsCIMField(field) {
		if numeric {
			return field, nil
		}
		return field, nil
	}
	if !identifierPattern.MatchString(field) {
		if c.allowUnmapped {
			c.warnings = append(c.warnings, fmt.Sprintf("unmapped identifier %q tolerated (allow_unmapped)", field))
			return "NULL", nil
		}
		return "", apperrors.DisallowedIdentifier(field)
	}
	accessor := fmt.Sprintf("custom_fields->>'%s'", strings.ReplaceAll(field, "'", "''"))
	if numeric {
		return fmt.Sprintf("(%s)::numeric", accessor), nil
	}
	return accessor, nil
}

// Compile produces a SELECT against eventsTable implementing dsl's
// search/threshold/cardinality sections (spec.md §4.4). The sequence section
// is not compiled, since cross-event ordering cannot be expressed as a single
// aggregate SELECT; the streaming runner does not evaluate it either (it
// evaluates only search.where).
func Compile(dsl DSL, eventsTable string) (Result, error) {
	c := &compiler{allowUnmapped: dsl.AllowUnmapped}

	var b strings.Builder
	b.WriteString("SELECT event_id, event_timestamp, tenant_id, source_type FROM ")
	b.WriteString(eventsTable)

	var conditions []string

	if len(dsl.Search.TenantIDs) > 0 {
		placeholders := make([]string, len(dsl.Search.TenantIDs))
		for i, t := range dsl.Search.TenantIDs {
			placeholders[i] = c.placeholder(t)
		}
		conditions = append(conditions, fmt.Sprintf("tenant_id IN (%s)", strings.Join(placeholders, ", ")))
	}

	timeCond, err := c.compileTimeRange(dsl.Search.TimeRange)
	if err != nil {
		return Result{}, err
	}
	if timeCond != "" {
		conditions = append(conditions, timeCond)
	}

	if dsl.Search.Where != nil {
		whereSQL, err := c.compileExpr(dsl.Search.Where)
		if err != nil {
			return Result{}, err
		}
		conditions = append(conditions, whereSQL)
	}

	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}

	switch {
	case dsl.Threshold != nil:
		if err := c.appendThreshold(&b, *dsl.Threshold); err != nil {
			return Result{}, err
		}
	case dsl.Cardinality != nil:
		if err := c.appendCardinality(&b, *dsl.Cardinality); err != nil {
			return Result{}, err
		}
	}

	return Result{SQL: b.String(), Args: c.args, Warnings: c.warnings}, nil
}

func (c *compiler) compileTimeRange(tr TimeRange) (string, error) {
	switch {
	case tr.LastSeconds > 0:
		return fmt.Sprintf("event_timestamp >= now() - interval '%d seconds'", tr.LastSeconds), nil
	case tr.From != "" && tr.To != "":
		return fmt.Sprintf("event_timestamp BETWEEN %s AND %s", c.placeholder(tr.From), c.placeholder(tr.To)), nil
	case tr.From != "":
		return fmt.Sprintf("event_timestamp >= %s", c.placeholder(tr.From)), nil
	case tr.To != "":
		return fmt.Sprintf("event_timestamp <= %s", c.placeholder(tr.To)), nil
	default:
		return "", nil
	}
}

func (c *compiler) appendThreshold(b *strings.Builder, th Threshold) error {
	if len(th.GroupBy) > 0 {
		cols := make([]string, len(th.GroupBy))
		for i, f := range th.GroupBy {
			col, err := c.resolveIdentifier(f, false)
			if err != nil {
				return err
			}
			cols[i] = col
		}
		fmt.Fprintf(b, " GROUP BY %s", strings.Join(cols, ", "))
	}
	fmt.Fprintf(b, " HAVING count(*) >= %s", c.placeholder(th.Count))
	return nil
}

func (c *compiler) appendCardinality(b *strings.Builder, card Cardinality) error {
	field, err := c.resolveIdentifier(card.Field, false)
	if err != nil {
		return err
	}
	if len(card.GroupBy) > 0 {
		cols := make([]string, len(card.GroupBy))
		for i, f := range card.GroupBy {
			col, err := c.resolveIdentifier(f, false)
			if err != nil {
				return err
			}
			cols[i] = col
		}
		fmt.Fprintf(b, " GROUP BY %s", strings.Join(cols, ", "))
	}
	fmt.Fprintf(b, " HAVING count(DISTINCT %s) >= %s", field, c.placeholder(card.Unique))
	return nil
}

func (c *compiler) compileExpr(e *Expr) (string, error) {
	if e == nil {
		return "", nil
	}
	if e.Bool != "" {
		return c.compileBool(e)
	}
	return c.compileLeaf(e)
}

func (c *compiler) compileBool(e *Expr) (string, error) {
	switch e.Bool {
	case OpNot:
		if len(e.Children) != 1 {
			return "", apperrors.Internal("not expects exactly one child", nil)
		}
		child, err := c.compileExpr(e.Children[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", child), nil
	case OpAnd, OpOr:
		joiner := " AND "
		if e.Bool == OpOr {
			joiner = " OR "
		}
		parts := make([]string, 0, len(e.Children))
		for _, child := range e.Children {
			part, err := c.compileExpr(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, joiner) + ")", nil
	default:
		return "", apperrors.Internal(fmt.Sprintf("unknown bool op %q", e.Bool), nil)
	}
}

func isNumericComparator(cmp Comparator) bool {
	switch cmp {
	case CmpGt, CmpGte, CmpLt, CmpLte, CmpBetween:
		return true
	default:
		return false
	}
}

func (c *compiler) compileLeaf(e *Expr) (string, error) {
	col, err := c.resolveIdentifier(e.Field, isNumericComparator(e.Cmp))
	if err != nil {
		return "", err
	}

	switch e.Cmp {
	case CmpEq:
		return fmt.Sprintf("%s = %s", col, c.placeholder(e.Value)), nil
	case CmpNeq:
		return fmt.Sprintf("%s != %s", col, c.placeholder(e.Value)), nil
	case CmpContains:
		return fmt.Sprintf("%s LIKE %s", col, c.placeholder("%"+fmt.Sprint(e.Value)+"%")), nil
	case CmpStartsWith:
		return fmt.Sprintf("%s LIKE %s", col, c.placeholder(fmt.Sprint(e.Value)+"%")), nil
	case CmpEndsWith:
		return fmt.Sprintf("%s LIKE %s", col, c.placeholder("%"+fmt.Sprint(e.Value))), nil
	case CmpRegex:
		return fmt.Sprintf("%s ~ %s", col, c.placeholder(e.Value)), nil
	case CmpIn:
		return c.compileInList(col, e.Values, false)
	case CmpNotIn:
		return c.compileInList(col, e.Values, true)
	case CmpGt:
		return fmt.Sprintf("%s > %s", col, c.placeholder(e.Value)), nil
	case CmpGte:
		return fmt.Sprintf("%s >= %s", col, c.placeholder(e.Value)), nil
	case CmpLt:
		return fmt.Sprintf("%s < %s", col, c.placeholder(e.Value)), nil
	case CmpLte:
		return fmt.Sprintf("%s <= %s", col, c.placeholder(e.Value)), nil
	case CmpBetween:
		if len(e.Values) != 2 {
			return "", apperrors.Internal("between expects exactly two values", nil)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, c.placeholder(e.Values[0]), c.placeholder(e.Values[1])), nil
	case CmpExists:
		return fmt.Sprintf("%s IS NOT NULL", col), nil
	case CmpNotExists:
		return fmt.Sprintf("%s IS NULL", col), nil
	default:
		return "", apperrors.Internal(fmt.Sprintf("unknown comparator %q", e.Cmp), nil)
	}
}

func (c *compiler) compileInList(col string, values []interface{}, negate bool) (string, error) {
	if len(values) == 0 {
		return "", apperrors.Internal("in/not_in expects at least one value", nil)
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = c.placeholder(v)
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(placeholders, ", ")), nil
}

// Recompile recompiles r's DSL and updates CompiledSQL, mirroring the
// scheduler's "if compiled_sql is absent or stale" step (spec.md §4.5 step 1).
func Recompile(r *rule.Rule, dsl DSL, eventsTable string) (Result, error) {
	res, err := Compile(dsl, eventsTable)
	if err != nil {
		return Result{}, err
	}
	r.CompiledSQL = res.SQL
	return res, nil
}
