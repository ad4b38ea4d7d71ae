package parser

import (
	"github.com/tidwall/gjson"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

// tryJSON implements spec.md §4.1 step 1: if the payload parses as a JSON
// object, its top-level keys become fields directly, grounded on
// transformation.rs's JsonParser (serde_json::from_str then map.into_iter()).
// gjson.Result.ForEach avoids a full unmarshal-to-interface{} allocation
// pass; gjson.Result.Value() returns every JSON number as float64.
func tryJSON(raw []byte) (Result, bool) {
	if !gjson.ValidBytes(raw) {
		return Result{}, false
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return Result{}, false
	}

	fields := make(map[string]interface{})
	parsed.ForEach(func(key, value gjson.Result) bool {
		fields[key.String()] = value.Value()
		return true
	})

	return Result{
		Fields:     fields,
		Status:     cim.StatusSuccess,
		SourceType: SourceJSON,
	}, true
}
