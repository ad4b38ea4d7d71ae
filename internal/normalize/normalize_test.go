package normalize

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/darkermemo/sim6-sub001/internal/apperrors"
	"github.com/darkermemo/sim6-sub001/internal/cim"
	"github.com/darkermemo/sim6-sub001/internal/parser"
)

func defaultLimits() Limits {
	return Limits{
		MaxMessageLength: 1000,
		MaxFieldsCount:   50,
		FieldNamePattern: regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,127}$`),
	}
}

func TestNormalize_ProjectsCIMFieldsAndCustomFields(t *testing.T) {
	parsed := parser.Result{
		Fields: map[string]interface{}{
			"message":       "login event",
			"source_ip":     "10.0.0.1",
			"source_port":   float64(8080),
			"vendor_code":   "X9",
			"severity":      "high",
		},
		Status: cim.StatusSuccess,
	}
	res, err := Normalize(Request{Parsed: parsed, TenantDefault: "tenant-a", Limits: defaultLimits()})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", res.Event.SourceIP)
	require.Equal(t, uint16(8080), res.Event.SourcePort)
	require.Equal(t, "X9", res.Event.CustomFields["vendor_code"])
	require.Equal(t, "HIGH", res.Event.Severity)
	require.Equal(t, "tenant-a", res.Event.TenantID)
}

func TestNormalize_EmptyMessageErrors(t *testing.T) {
	parsed := parser.Result{Fields: map[string]interface{}{"message": "   "}}
	_, err := Normalize(Request{Parsed: parsed, TenantDefault: "t", Limits: defaultLimits()})
	require.Error(t, err)
	require.Equal(t, apperrors.ErrCodeEmptyMessage, apperrors.Code(err))
}

func TestNormalize_MessageTooLargeErrors(t *testing.T) {
	huge := make([]byte, 2000)
	for i := range huge {
		huge[i] = 'a'
	}
	parsed := parser.Result{Fields: map[string]interface{}{"message": string(huge)}}
	_, err := Normalize(Request{Parsed: parsed, TenantDefault: "t", Limits: defaultLimits()})
	require.Error(t, err)
	require.Equal(t, apperrors.ErrCodeMessageTooLarge, apperrors.Code(err))
}

func TestNormalize_TooManyFieldsErrors(t *testing.T) {
	fields := map[string]interface{}{"message": "x"}
	for i := 0; i < 60; i++ {
		fields[time.Duration(i).String()+"_f"] = i
	}
	parsed := parser.Result{Fields: fields}
	_, err := Normalize(Request{Parsed: parsed, TenantDefault: "t", Limits: defaultLimits()})
	require.Error(t, err)
	require.Equal(t, apperrors.ErrCodeTooManyFields, apperrors.Code(err))
}

func TestNormalize_TenantFromPayloadWinsOverDefault(t *testing.T) {
	parsed := parser.Result{Fields: map[string]interface{}{"message": "x", "tenant_id": "tenant-payload"}}
	res, err := Normalize(Request{Parsed: parsed, TenantDefault: "tenant-default", Limits: defaultLimits()})
	require.NoError(t, err)
	require.Equal(t, "tenant-payload", res.Event.TenantID)
}

func TestNormalize_NoTenantErrors(t *testing.T) {
	parsed := parser.Result{Fields: map[string]interface{}{"message": "x"}}
	_, err := Normalize(Request{Parsed: parsed, TenantDefault: "", Limits: defaultLimits()})
	require.Error(t, err)
	require.Equal(t, apperrors.ErrCodeBadTenantBind, apperrors.Code(err))
}

func TestNormalize_NumericEpochTimestamp(t *testing.T) {
	parsed := parser.Result{Fields: map[string]interface{}{"message": "x", "event_timestamp": int64(1700000000)}}
	res, err := Normalize(Request{Parsed: parsed, TenantDefault: "t", Limits: defaultLimits()})
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), res.Event.EventTimestamp.Unix())
}

func TestNormalize_RFC3339Timestamp(t *testing.T) {
	parsed := parser.Result{Fields: map[string]interface{}{"message": "x", "event_timestamp": "2024-01-02T03:04:05Z"}}
	res, err := Normalize(Request{Parsed: parsed, TenantDefault: "t", Limits: defaultLimits()})
	require.NoError(t, err)
	require.Equal(t, 2024, res.Event.EventTimestamp.Year())
}

func TestNormalize_UnparseableExplicitTimestampErrors(t *testing.T) {
	parsed := parser.Result{Fields: map[string]interface{}{"message": "x", "event_timestamp": "not-a-timestamp"}}
	_, err := Normalize(Request{Parsed: parsed, TenantDefault: "t", Limits: defaultLimits()})
	require.Error(t, err)
	require.Equal(t, apperrors.ErrCodeBadTimestamp, apperrors.Code(err))
}

func TestNormalize_MissingTimestampFallsBackToNowWithWarning(t *testing.T) {
	parsed := parser.Result{Fields: map[string]interface{}{"message": "x"}}
	res, err := Normalize(Request{Parsed: parsed, TenantDefault: "t", Limits: defaultLimits()})
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().UTC(), res.Event.EventTimestamp, 5*time.Second)
	require.NotEmpty(t, res.Warnings)
}

func TestNormalize_UnknownSeverityDefaultsToInfoWithWarning(t *testing.T) {
	parsed := parser.Result{Fields: map[string]interface{}{"message": "x", "severity": "bogus"}}
	res, err := Normalize(Request{Parsed: parsed, TenantDefault: "t", Limits: defaultLimits()})
	require.NoError(t, err)
	require.Equal(t, "INFO", res.Event.Severity)
	found := false
	for _, w := range res.Warnings {
		if w != "" {
			found = true
		}
	}
	require.True(t, found)
}

func TestNormalize_ActionDerivesOutcome(t *testing.T) {
	parsed := parser.Result{Fields: map[string]interface{}{"message": "x", "action": "deny"}}
	res, err := Normalize(Request{Parsed: parsed, TenantDefault: "t", Limits: defaultLimits()})
	require.NoError(t, err)
	require.Equal(t, "failure", res.Event.Result)
}
