package parser

import "strings"

// vendorFieldAliases translates the short field names vendor grammars and
// free-form key=value logs commonly use into CIM column names (spec.md
// §4.1 "mapping-profile-based field translation": src->source_ip,
// srcPort->source_port, act->action, ...).
var vendorFieldAliases = map[string]string{
	"src":      "source_ip",
	"sourceip": "source_ip",
	"spt":      "source_port",
	"srcport":  "source_port",
	"dst":      "destination_ip",
	"destinationip": "destination_ip",
	"dpt":      "destination_port",
	"dstport":  "destination_port",
	"proto":    "protocol",
	"act":      "action",
	"msg":      "message",
	"shost":    "host_name",
	"dhost":    "host_name",
	"suser":    "user_name",
	"duser":    "user_name",
	"cs1":      "custom_fields.cs1",
	"cn1":      "custom_fields.cn1",
}

// CanonicalFieldName resolves a vendor alias (matched case-insensitively) to
// its CIM field name, or returns name unchanged when no alias applies.
func CanonicalFieldName(name string) string {
	lower := strings.ToLower(name)
	if mapped, ok := vendorFieldAliases[lower]; ok {
		return mapped
	}
	return name
}

var successOutcomes = map[string]struct{}{
	"allow": {}, "permit": {}, "accept": {},
}

var failureOutcomes = map[string]struct{}{
	"deny": {}, "drop": {}, "block": {}, "reset": {}, "reject": {},
}

// DeriveOutcome maps a raw action/result verb onto the CIM outcome vocabulary
// (spec.md §4.1: allow/permit/accept -> success, deny/drop/block/reset/reject
// -> failure). Anything else is returned unchanged.
func DeriveOutcome(action string) string {
	lower := strings.ToLower(strings.TrimSpace(action))
	if _, ok := successOutcomes[lower]; ok {
		return "success"
	}
	if _, ok := failureOutcomes[lower]; ok {
		return "failure"
	}
	return action
}
