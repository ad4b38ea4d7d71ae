package rule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// H is the fixed system-wide hash used for deterministic alert ids
// (spec.md §6): SHA-256, hex-encoded.
func H(parts ...string) string {
	hasher := sha256.New()
	for i, p := range parts {
		if i > 0 {
			hasher.Write([]byte("|"))
		}
		hasher.Write([]byte(p))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// BatchDedupHash computes H(rule_id|tenant_id) truncated to its first 64 bits
// (16 hex characters), the value persisted as RuleState.DedupHash.
func BatchDedupHash(ruleID, tenantID string) string {
	full := H(ruleID, tenantID)
	return full[:16]
}

// ThrottleWindow computes floor(now / max(throttleSeconds, 60)) as the
// current throttle window index.
func ThrottleWindow(now time.Time, throttleSeconds int) int64 {
	window := throttleSeconds
	if window < 60 {
		window = 60
	}
	return now.Unix() / int64(window)
}

// BatchAlertID forms the deterministic batch alert id:
// H(dedup_hash || ":" || w).
func BatchAlertID(dedupHash string, window int64) string {
	return H(fmt.Sprintf("%s:%d", dedupHash, window))
}

// StreamAlertID forms the deterministic streaming alert id:
// H(rule_id | tenant_id | group_key | stream_entry_id).
func StreamAlertID(ruleID, tenantID, groupKey, entryID string) string {
	return H(ruleID, tenantID, groupKey, entryID)
}

// DedupKey builds the Redis SETNX key for streaming per-entry dedup:
// dedup:<rule_id>:<field1>|<field2>|...
func DedupKey(ruleID string, fieldValues []string) string {
	joined := ""
	for i, v := range fieldValues {
		if i > 0 {
			joined += "|"
		}
		joined += v
	}
	return fmt.Sprintf("dedup:%s:%s", ruleID, joined)
}
