// Package cim defines the canonical Common Information Model event shape
// every ingested record is normalized into, and the closed field taxonomy
// that separates typed CIM columns from the free-form custom_fields bag.
package cim

import (
	"time"

	"github.com/google/uuid"
)

// ParsingStatus reports how much of a raw payload the parser understood.
type ParsingStatus string

const (
	StatusSuccess ParsingStatus = "success"
	StatusPartial ParsingStatus = "partial"
	StatusFailed  ParsingStatus = "failed"
)

// Event is the canonical record persisted by the sink (spec.md §3).
// raw_event is preserved verbatim on every record — invariant R1/P1 — and is
// never touched after construction.
type Event struct {
	EventID             uuid.UUID     `json:"event_id"`
	TenantID            string        `json:"tenant_id"`
	EventTimestamp      time.Time     `json:"event_timestamp"`
	IngestionTimestamp  time.Time     `json:"ingestion_timestamp"`
	RawEvent            string        `json:"raw_event"`
	ParsingStatus       ParsingStatus `json:"parsing_status"`
	ParseErrorMsg       string        `json:"parse_error_msg,omitempty"`

	// Network
	SourceIP          string `json:"source_ip,omitempty"`
	SourcePort        uint16 `json:"source_port,omitempty"`
	DestinationIP     string `json:"destination_ip,omitempty"`
	DestinationPort   uint16 `json:"destination_port,omitempty"`
	Protocol          string `json:"protocol,omitempty"`
	NetworkDirection  string `json:"network_direction,omitempty"`
	BytesIn           uint64 `json:"bytes_in,omitempty"`
	BytesOut          uint64 `json:"bytes_out,omitempty"`
	PacketsIn         uint64 `json:"packets_in,omitempty"`
	PacketsOut        uint64 `json:"packets_out,omitempty"`

	// Identity
	UserName               string `json:"user_name,omitempty"`
	UserID                 string `json:"user_id,omitempty"`
	UserDomain             string `json:"user_domain,omitempty"`
	AuthenticationMethod   string `json:"authentication_method,omitempty"`
	AuthenticationResult   string `json:"authentication_result,omitempty"`

	// Host
	HostName        string `json:"host_name,omitempty"`
	HostIP          string `json:"host_ip,omitempty"`
	OperatingSystem string `json:"operating_system,omitempty"`
	HostType        string `json:"host_type,omitempty"`

	// Process
	ProcessName       string `json:"process_name,omitempty"`
	ProcessID         uint32 `json:"process_id,omitempty"`
	ProcessPath       string `json:"process_path,omitempty"`
	ParentProcessName string `json:"parent_process_name,omitempty"`
	ParentProcessID   uint32 `json:"parent_process_id,omitempty"`
	CommandLine       string `json:"command_line,omitempty"`

	// File
	FilePath     string `json:"file_path,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	FileSize     uint64 `json:"file_size,omitempty"`
	FileHash     string `json:"file_hash,omitempty"`
	FileHashType string `json:"file_hash_type,omitempty"`

	// Web
	URL            string `json:"url,omitempty"`
	HTTPMethod     string `json:"http_method,omitempty"`
	HTTPStatusCode uint16 `json:"http_status_code,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	Referer        string `json:"referer,omitempty"`

	// Security
	EventType   string `json:"event_type,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Category    string `json:"category,omitempty"`
	Action      string `json:"action,omitempty"`
	Result      string `json:"result,omitempty"`
	ThreatName  string `json:"threat_name,omitempty"`
	SignatureID string `json:"signature_id,omitempty"`

	// Free-form
	Message      string                 `json:"message"`
	CustomFields map[string]interface{} `json:"custom_fields,omitempty"`
}

// Field is a closed taxonomy member name, used by the normalizer and rule
// compiler as the single source of truth for CIM-column vs custom_fields
// routing (Design Note "dynamic field maps").
type Field string

// CIM is the closed set of top-level CIM column names. Anything not in this
// set belongs in CustomFields (invariant I2 / P3).
var CIM = map[Field]struct{}{
	"source_ip": {}, "source_port": {}, "destination_ip": {}, "destination_port": {},
	"protocol": {}, "network_direction": {}, "bytes_in": {}, "bytes_out": {},
	"packets_in": {}, "packets_out": {},

	"user_name": {}, "user_id": {}, "user_domain": {},
	"authentication_method": {}, "authentication_result": {},

	"host_name": {}, "host_ip": {}, "operating_system": {}, "host_type": {},

	"process_name": {}, "process_id": {}, "process_path": {},
	"parent_process_name": {}, "parent_process_id": {}, "command_line": {},

	"file_path": {}, "file_name": {}, "file_size": {}, "file_hash": {}, "file_hash_type": {},

	"url": {}, "http_method": {}, "http_status_code": {}, "user_agent": {}, "referer": {},

	"event_type": {}, "severity": {}, "category": {}, "action": {}, "result": {},
	"threat_name": {}, "signature_id": {},

	"message": {},
}

// IsCIMField reports whether name is a member of the closed CIM taxonomy.
func IsCIMField(name string) bool {
	_, ok := CIM[Field(name)]
	return ok
}

// NewEventID returns a random 128-bit event identifier (§4.2 "Event id").
func NewEventID() uuid.UUID { return uuid.New() }
