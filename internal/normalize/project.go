package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

var knownSeverities = map[string]struct{}{
	"EMERGENCY": {}, "ALERT": {}, "CRITICAL": {}, "ERROR": {},
	"WARNING": {}, "NOTICE": {}, "INFO": {}, "DEBUG": {},
	"LOW": {}, "MEDIUM": {}, "HIGH": {},
}

// normalizeSeverity implements spec.md §4.2 level normalization: uppercase
// known levels, default unknown ones to INFO with a warning.
func normalizeSeverity(value interface{}) (string, string) {
	s := strings.ToUpper(strings.TrimSpace(fmt.Sprint(value)))
	if _, ok := knownSeverities[s]; ok {
		return s, ""
	}
	return "INFO", fmt.Sprintf("unrecognized severity level %q defaulted to INFO", value)
}

// projectField routes one field onto its CIM column if it belongs to the
// closed taxonomy, or into custom_fields otherwise (invariant I2: a CIM
// field name never also appears in custom_fields).
func projectField(event *cim.Event, name string, value interface{}) {
	if !cim.IsCIMField(name) {
		event.CustomFields[name] = value
		return
	}

	switch name {
	case "source_ip":
		event.SourceIP = asString(value)
	case "destination_ip":
		event.DestinationIP = asString(value)
	case "source_port":
		event.SourcePort = asUint16(value)
	case "destination_port":
		event.DestinationPort = asUint16(value)
	case "protocol":
		event.Protocol = asString(value)
	case "network_direction":
		event.NetworkDirection = asString(value)
	case "bytes_in":
		event.BytesIn = asUint64(value)
	case "bytes_out":
		event.BytesOut = asUint64(value)
	case "packets_in":
		event.PacketsIn = asUint64(value)
	case "packets_out":
		event.PacketsOut = asUint64(value)

	case "user_name":
		event.UserName = asString(value)
	case "user_id":
		event.UserID = asString(value)
	case "user_domain":
		event.UserDomain = asString(value)
	case "authentication_method":
		event.AuthenticationMethod = asString(value)
	case "authentication_result":
		event.AuthenticationResult = asString(value)

	case "host_name":
		event.HostName = asString(value)
	case "host_ip":
		event.HostIP = asString(value)
	case "operating_system":
		event.OperatingSystem = asString(value)
	case "host_type":
		event.HostType = asString(value)

	case "process_name":
		event.ProcessName = asString(value)
	case "process_id":
		event.ProcessID = asUint32(value)
	case "process_path":
		event.ProcessPath = asString(value)
	case "parent_process_name":
		event.ParentProcessName = asString(value)
	case "parent_process_id":
		event.ParentProcessID = asUint32(value)
	case "command_line":
		event.CommandLine = asString(value)

	case "file_path":
		event.FilePath = asString(value)
	case "file_name":
		event.FileName = asString(value)
	case "file_size":
		event.FileSize = asUint64(value)
	case "file_hash":
		event.FileHash = asString(value)
	case "file_hash_type":
		event.FileHashType = asString(value)

	case "url":
		event.URL = asString(value)
	case "http_method":
		event.HTTPMethod = asString(value)
	case "http_status_code":
		event.HTTPStatusCode = asUint16(value)
	case "user_agent":
		event.UserAgent = asString(value)
	case "referer":
		event.Referer = asString(value)

	case "event_type":
		event.EventType = asString(value)
	case "severity":
		event.Severity = asString(value)
	case "category":
		event.Category = asString(value)
	case "action":
		event.Action = asString(value)
	case "result":
		event.Result = asString(value)
	case "threat_name":
		event.ThreatName = asString(value)
	case "signature_id":
		event.SignatureID = asString(value)
	}
}

func asString(value interface{}) string {
	return fmt.Sprint(value)
}

// asUint16 coerces and clamps into a 16-bit unsigned bound (ports, HTTP
// status codes); out-of-range or unparseable values are dropped to 0 rather
// than corrupting the column.
func asUint16(value interface{}) uint16 {
	n := asInt64(value)
	if n < 0 || n > 65535 {
		return 0
	}
	return uint16(n)
}

func asUint32(value interface{}) uint32 {
	n := asInt64(value)
	if n < 0 || n > 4294967295 {
		return 0
	}
	return uint32(n)
}

func asUint64(value interface{}) uint64 {
	n := asInt64(value)
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func asInt64(value interface{}) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int64(f)
		}
		return -1
	default:
		return -1
	}
}
