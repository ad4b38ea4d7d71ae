package parser

import (
	"regexp"
	"strconv"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

// syslogPattern is the RFC3164 grammar lifted directly from
// transformation.rs's SyslogParser::new (the same capture groups: priority,
// timestamp, hostname, process, message).
var syslogPattern = regexp.MustCompile(`^<(\d+)>(\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+([^:\s]+):\s*(.*)$`)

var syslogSeverities = []string{
	"emergency", "alert", "critical", "error", "warning", "notice", "info", "debug",
}

// trySyslog implements spec.md §4.1 step 2.
func trySyslog(raw []byte) (Result, bool) {
	m := syslogPattern.FindSubmatch(raw)
	if m == nil {
		return Result{}, false
	}
	priority, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return Result{}, false
	}
	facility := priority >> 3
	severity := "unknown"
	if idx := priority & 7; idx < len(syslogSeverities) {
		severity = syslogSeverities[idx]
	}

	fields := map[string]interface{}{
		"facility":      facility,
		"severity":      severity,
		"raw_timestamp": string(m[2]),
		"host_name":     string(m[3]),
		"source":        string(m[4]),
		"message":       string(m[5]),
	}
	return Result{
		Fields:     fields,
		Status:     cim.StatusPartial,
		SourceType: SourceSyslog,
		Warning:    "RFC3164 syslog grammar matched: facility/severity/tag extracted, message not structurally parsed",
	}, true
}
