// Package parser implements the universal log parser (spec.md §4.1): a
// priority-ordered cascade of format detectors that turns an arbitrary raw
// payload into a flat field map, falling back to free-text extraction rather
// than ever dropping the record. Grounded on
// original_source/siem_unified_pipeline/src/transformation.rs's
// SyslogParser/JsonParser/CefParser EventParser impls, translated from
// regex-per-format structs into a Go interface registry.
package parser

import (
	"github.com/darkermemo/sim6-sub001/internal/cim"
)

// SourceType names which stage produced a Result.
type SourceType string

const (
	SourceJSON     SourceType = "json"
	SourceSyslog   SourceType = "syslog"
	SourceKV       SourceType = "kv"
	SourceVendor   SourceType = "vendor"
	SourceFreeText SourceType = "freetext"
)

// Result is the parser's output: a flat field map ready for the normalizer,
// plus the parsing status and warning the normalizer will persist alongside
// the event (spec.md §4.1 "Parser failure never drops data; it downgrades
// status").
type Result struct {
	Fields     map[string]interface{}
	Status     cim.ParsingStatus
	SourceType SourceType
	VendorName string
	Warning    string
}

// Parse runs the 5-step detection cascade against raw. It never returns an
// error: every payload produces a Result, worst case SourceFreeText with
// StatusFailed.
func Parse(raw []byte) Result {
	if res, ok := tryJSON(raw); ok {
		return res
	}
	if res, ok := trySyslog(raw); ok {
		return res
	}
	if res, ok := tryKV(raw); ok {
		return res
	}
	if res, ok := tryVendor(raw, DefaultRegistry); ok {
		return res
	}
	return fallback(raw)
}

// ParseWithRegistry is Parse with an explicit vendor grammar registry,
// letting callers register additional vendor-CSV profiles without mutating
// the package-level default.
func ParseWithRegistry(raw []byte, registry *Registry) Result {
	if res, ok := tryJSON(raw); ok {
		return res
	}
	if res, ok := trySyslog(raw); ok {
		return res
	}
	if res, ok := tryKV(raw); ok {
		return res
	}
	if res, ok := tryVendor(raw, registry); ok {
		return res
	}
	return fallback(raw)
}
