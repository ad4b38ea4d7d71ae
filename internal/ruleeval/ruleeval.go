// Package ruleeval evaluates a ruledsl.Expr tree directly against an event
// envelope in memory, the streaming counterpart to ruledsl.Compile's SQL
// generation. Grounded in services/datafeed/marble/core.go's gjson-based
// dynamic field pluck, here repointed from runtime JSON plucking at a
// blockchain datafeed payload to evaluating CIM rule predicates.
package ruleeval

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/darkermemo/sim6-sub001/internal/cim"
	"github.com/darkermemo/sim6-sub001/internal/ruledsl"
)

// Envelope is a flattened, JSON-ready view of one event, used both as the
// evaluation target and as the group-by/dedup key source.
type Envelope []byte

// FromEvent marshals an event into an evaluation envelope. custom_fields
// keys are addressed as "custom_fields.<key>" via gjson's dotted path
// syntax, matching the JSONB accessor ruledsl.Compile generates for SQL.
func FromEvent(e *cim.Event) (Envelope, error) {
	data, err := marshalEvent(e)
	if err != nil {
		return nil, fmt.Errorf("ruleeval: marshal envelope: %w", err)
	}
	return Envelope(data), nil
}

// Get resolves field (a CIM column name, or a bare custom_fields key that is
// looked up under "custom_fields.<field>") against the envelope using gjson.
func (e Envelope) Get(field string) gjson.Result {
	if cim.IsCIMField(field) {
		return gjson.GetBytes(e, field)
	}
	return gjson.GetBytes(e, "custom_fields."+field)
}

// Eval reports whether expr matches envelope.
func Eval(expr *ruledsl.Expr, env Envelope) (bool, error) {
	if expr == nil {
		return true, nil
	}
	if expr.Bool != "" {
		return evalBool(expr, env)
	}
	return evalLeaf(expr, env)
}

func evalBool(expr *ruledsl.Expr, env Envelope) (bool, error) {
	switch expr.Bool {
	case ruledsl.OpNot:
		if len(expr.Children) != 1 {
			return false, fmt.Errorf("ruleeval: not expects exactly one child")
		}
		v, err := Eval(expr.Children[0], env)
		return !v, err
	case ruledsl.OpAnd:
		for _, child := range expr.Children {
			v, err := Eval(child, env)
			if err != nil {
				return false, err
			}
			if !v {
				return false, nil
			}
		}
		return true, nil
	case ruledsl.OpOr:
		for _, child := range expr.Children {
			v, err := Eval(child, env)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("ruleeval: unknown bool op %q", expr.Bool)
	}
}

func evalLeaf(expr *ruledsl.Expr, env Envelope) (bool, error) {
	result := env.Get(expr.Field)

	switch expr.Cmp {
	case ruledsl.CmpExists:
		return result.Exists(), nil
	case ruledsl.CmpNotExists:
		return !result.Exists(), nil
	}

	if !result.Exists() {
		return false, nil
	}

	switch expr.Cmp {
	case ruledsl.CmpEq:
		return result.String() == fmt.Sprint(expr.Value), nil
	case ruledsl.CmpNeq:
		return result.String() != fmt.Sprint(expr.Value), nil
	case ruledsl.CmpContains:
		return strings.Contains(result.String(), fmt.Sprint(expr.Value)), nil
	case ruledsl.CmpStartsWith:
		return strings.HasPrefix(result.String(), fmt.Sprint(expr.Value)), nil
	case ruledsl.CmpEndsWith:
		return strings.HasSuffix(result.String(), fmt.Sprint(expr.Value)), nil
	case ruledsl.CmpRegex:
		re, err := regexp.Compile(fmt.Sprint(expr.Value))
		if err != nil {
			return false, fmt.Errorf("ruleeval: invalid regex %q: %w", expr.Value, err)
		}
		return re.MatchString(result.String()), nil
	case ruledsl.CmpIn:
		return containsValue(expr.Values, result), nil
	case ruledsl.CmpNotIn:
		return !containsValue(expr.Values, result), nil
	case ruledsl.CmpGt:
		return result.Num > toFloat(expr.Value), nil
	case ruledsl.CmpGte:
		return result.Num >= toFloat(expr.Value), nil
	case ruledsl.CmpLt:
		return result.Num < toFloat(expr.Value), nil
	case ruledsl.CmpLte:
		return result.Num <= toFloat(expr.Value), nil
	case ruledsl.CmpBetween:
		if len(expr.Values) != 2 {
			return false, fmt.Errorf("ruleeval: between expects exactly two values")
		}
		return result.Num >= toFloat(expr.Values[0]) && result.Num <= toFloat(expr.Values[1]), nil
	default:
		return false, fmt.Errorf("ruleeval: unknown comparator %q", expr.Cmp)
	}
}

func containsValue(values []interface{}, result gjson.Result) bool {
	for _, v := range values {
		if result.String() == fmt.Sprint(v) {
			return true
		}
	}
	return false
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
