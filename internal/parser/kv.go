package parser

import (
	"regexp"
	"strings"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

// kvPattern matches one key=value token, with or without quoting, per
// spec.md §4.1 step 3 ("one or more key=value pairs").
var kvPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.-]*)=("([^"]*)"|(\S+))`)

// tryKV extracts key=value pairs; any leftover, non-pair text is kept as the
// message. Requires at least one pair to claim the payload, so plain
// free-text doesn't get misdetected here.
func tryKV(raw []byte) (Result, bool) {
	matches := kvPattern.FindAllSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return Result{}, false
	}

	fields := make(map[string]interface{}, len(matches))
	var leftover strings.Builder
	cursor := 0
	for _, m := range matches {
		leftover.Write(raw[cursor:m[0]])
		cursor = m[1]

		key := string(raw[m[2]:m[3]])
		var value string
		if m[6] >= 0 {
			value = string(raw[m[6]:m[7]]) // quoted group
		} else {
			value = string(raw[m[8]:m[9]]) // bare group
		}
		fields[key] = value
	}
	leftover.Write(raw[cursor:])

	if msg := strings.TrimSpace(leftover.String()); msg != "" {
		fields["message"] = msg
	}

	return Result{
		Fields:     fields,
		Status:     cim.StatusPartial,
		SourceType: SourceKV,
		Warning:    "key=value pairs extracted without a declared grammar",
	}, true
}
