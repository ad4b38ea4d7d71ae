package ruleeval

import (
	"encoding/json"
	"strings"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

func marshalEvent(e *cim.Event) ([]byte, error) {
	return json.Marshal(e)
}

// GroupKey builds the group-by composite key used for per-group throttling
// and alert id derivation (spec.md §4.6), joining each field's resolved
// value with "|".
func GroupKey(env Envelope, groupBy []string) string {
	if len(groupBy) == 0 {
		return ""
	}
	parts := make([]string, len(groupBy))
	for i, field := range groupBy {
		parts[i] = env.Get(field).String()
	}
	return strings.Join(parts, "|")
}
