// Package normalize implements the normalizer and validator (spec.md §4.2):
// it takes a parser.Result and turns it into a canonical cim.Event, coercing
// timestamps, normalizing severity levels, binding the tenant, policing
// field limits, and projecting fields onto the closed CIM taxonomy or the
// custom_fields bag.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/darkermemo/sim6-sub001/internal/apperrors"
	"github.com/darkermemo/sim6-sub001/internal/cim"
	"github.com/darkermemo/sim6-sub001/internal/parser"
)

// Limits bounds field policing (spec.md §4.2), sourced from
// config.IngestConfig so callers don't depend on the config package directly.
type Limits struct {
	MaxMessageLength int
	MaxFieldsCount   int
	FieldNamePattern *regexp.Regexp
}

// Request is one normalize() call's input.
type Request struct {
	Raw           []byte
	Parsed        parser.Result
	TenantDefault string
	Limits        Limits
}

// Result is a normalized event plus any non-fatal warnings accumulated along
// the way (unknown severity, unparseable non-explicit timestamp, field name
// that fails the naming convention, etc).
type Result struct {
	Event    cim.Event
	Warnings []string
}

// Normalize implements normalize(parsed, tenant_default) -> Event | error.
func Normalize(req Request) (Result, error) {
	var warnings []string
	if req.Parsed.Warning != "" {
		warnings = append(warnings, req.Parsed.Warning)
	}
	fields := req.Parsed.Fields
	if fields == nil {
		fields = map[string]interface{}{}
	}

	message, ok := stringField(fields, "message")
	if !ok || strings.TrimSpace(message) == "" {
		return Result{}, apperrors.EmptyMessage()
	}
	if req.Limits.MaxMessageLength > 0 && len(message) > req.Limits.MaxMessageLength {
		return Result{}, apperrors.MessageTooLarge(len(message), req.Limits.MaxMessageLength)
	}

	if req.Limits.MaxFieldsCount > 0 && len(fields) > req.Limits.MaxFieldsCount {
		return Result{}, apperrors.TooManyFields(len(fields), req.Limits.MaxFieldsCount)
	}

	ts, tsWarning, err := coerceTimestamp(fields)
	if err != nil {
		return Result{}, err
	}
	if tsWarning != "" {
		warnings = append(warnings, tsWarning)
	}

	tenantID, err := bindTenant(fields, req.TenantDefault)
	if err != nil {
		return Result{}, err
	}

	event := cim.Event{
		EventID:            cim.NewEventID(),
		TenantID:           tenantID,
		EventTimestamp:     ts,
		IngestionTimestamp: time.Now().UTC(),
		RawEvent:           string(req.Raw),
		ParsingStatus:      req.Parsed.Status,
		ParseErrorMsg:      req.Parsed.Warning,
		Message:            message,
		CustomFields:       map[string]interface{}{},
	}

	for name, value := range fields {
		if name == "message" {
			continue
		}
		if req.Limits.FieldNamePattern != nil && !req.Limits.FieldNamePattern.MatchString(name) {
			warnings = append(warnings, fmt.Sprintf("field name %q does not match the configured naming convention", name))
		}
		if name == "severity" || name == "level" {
			normalized, levelWarning := normalizeSeverity(value)
			if levelWarning != "" {
				warnings = append(warnings, levelWarning)
			}
			value = normalized
			name = "severity"
		}
		projectField(&event, name, value)
	}

	if event.Action != "" {
		event.Result = parser.DeriveOutcome(event.Action)
	}

	return Result{Event: event, Warnings: warnings}, nil
}

func stringField(fields map[string]interface{}, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// coerceTimestamp implements spec.md §4.2's timestamp coercion ladder:
// numeric epoch seconds/millis, float epoch seconds, RFC3339/ISO-8601
// strings, falling back to now() with a warning — unless the field was an
// explicit, non-empty value that simply failed to parse, which is an error.
func coerceTimestamp(fields map[string]interface{}) (time.Time, string, error) {
	raw, explicit := firstPresent(fields, "event_timestamp", "timestamp", "raw_timestamp")
	if !explicit {
		return time.Now().UTC(), "no timestamp field present; ingestion time used", nil
	}

	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), "", nil
	case int64:
		return epochToTime(v), "", nil
	case int:
		return epochToTime(int64(v)), "", nil
	case float64:
		return epochFloatToTime(v), "", nil
	case string:
		if t, ok := parseTimestampString(v); ok {
			return t.UTC(), "", nil
		}
		return time.Time{}, "", apperrors.BadTimestamp(v)
	default:
		return time.Time{}, "", apperrors.BadTimestamp(raw)
	}
}

func firstPresent(fields map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func epochToTime(v int64) time.Time {
	if v > 1e12 { // milliseconds
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

func epochFloatToTime(v float64) time.Time {
	if v > 1e12 { // milliseconds
		v /= 1000
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Jan _2 15:04:05",
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epochToTime(n), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochFloatToTime(f), true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() == 0 {
				t = t.AddDate(time.Now().Year(), 0, 0)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// bindTenant implements spec.md §4.2 tenant binding: the parsed tenant_id
// wins over the caller-supplied default; at least one must be present.
func bindTenant(fields map[string]interface{}, tenantDefault string) (string, error) {
	if v, ok := stringField(fields, "tenant_id"); ok && strings.TrimSpace(v) != "" {
		return v, nil
	}
	if strings.TrimSpace(tenantDefault) != "" {
		return tenantDefault, nil
	}
	return "", apperrors.New(apperrors.ErrCodeBadTenantBind, "no tenant_id in payload and no default tenant bound", 400)
}
