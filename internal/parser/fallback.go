package parser

import (
	"regexp"
	"strings"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

var ipv4Pattern = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)

var rfc3339Pattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?`)

var levelPattern = regexp.MustCompile(`(?i)\b(EMERGENCY|CRITICAL|FATAL|ERROR|WARN(?:ING)?|NOTICE|INFO|DEBUG|TRACE)\b`)

// fallback implements spec.md §4.1 step 5: the entire payload becomes the
// message, with best-effort IPv4/level/timestamp extraction and
// StatusFailed so downstream consumers know the record is unstructured.
func fallback(raw []byte) Result {
	text := string(raw)
	fields := map[string]interface{}{"message": text}

	if ips := ipv4Pattern.FindAllString(text, 2); len(ips) > 0 {
		fields["source_ip"] = ips[0]
		if len(ips) > 1 {
			fields["destination_ip"] = ips[1]
		}
	}
	if ts := rfc3339Pattern.FindString(text); ts != "" {
		fields["raw_timestamp"] = ts
	}
	if lvl := levelPattern.FindString(text); lvl != "" {
		fields["severity"] = strings.ToUpper(lvl)
	}

	return Result{
		Fields:     fields,
		Status:     cim.StatusFailed,
		SourceType: SourceFreeText,
		Warning:    "Unstructured format - stored as message",
	}
}
