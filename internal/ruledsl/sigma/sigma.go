// Package sigma imports Sigma YAML rules into the internal rule DSL (spec.md
// §4.4 "Sigma importer"), grounded on
// original_source/siem_unified_pipeline/src/v2/handlers/alert_rules.rs's
// sigma_compile handler: parse YAML, map each detection field key through a
// mapping profile, build an AND/OR expression tree, map `level` to severity.
package sigma

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/darkermemo/sim6-sub001/internal/apperrors"
	"github.com/darkermemo/sim6-sub001/internal/ruledsl"
)

// MappingProfile translates Sigma field keys to CIM field names.
type MappingProfile map[string]string

// DefaultCIMv1 is the baseline mapping profile named in spec.md §4.4.
var DefaultCIMv1 = MappingProfile{
	"user.name":         "user_name",
	"source.ip":         "source_ip",
	"destination.ip":    "destination_ip",
	"source.port":       "source_port",
	"destination.port":  "destination_port",
	"network.protocol":  "protocol",
	"event.category":    "event_category",
	"event.action":      "event_action",
	"event.outcome":     "event_outcome",
	"log.severity":      "severity",
	"message":           "message",
}

// Profiles is the registry of named mapping profiles.
var Profiles = map[string]MappingProfile{
	"default_cim_v1": DefaultCIMv1,
}

func (p MappingProfile) resolve(sigmaField string) (string, bool) {
	v, ok := p[sigmaField]
	return v, ok
}

type sigmaDoc struct {
	Title     string                 `yaml:"title"`
	Level     string                 `yaml:"level"`
	LogSource map[string]interface{} `yaml:"logsource"`
	Detection map[string]interface{} `yaml:"detection"`
}

// Request configures one import.
type Request struct {
	YAML           string
	MappingProfile string // defaults to "default_cim_v1"
	AllowUnmapped  bool
	TenantIDs      []string
	LastSeconds    int64
}

// Result is an imported rule.
type Result struct {
	DSL      ruledsl.DSL
	Severity string
	Title    string
	Warnings []string
}

// severityFromLevel maps Sigma's level to the internal severity scale.
func severityFromLevel(level string) string {
	switch level {
	case "informational":
		return "INFO"
	case "low":
		return "LOW"
	case "medium":
		return "MEDIUM"
	case "high":
		return "HIGH"
	case "critical":
		return "CRITICAL"
	default:
		return "MEDIUM"
	}
}

// Import parses a Sigma YAML document and produces the internal DSL.
func Import(req Request) (Result, error) {
	var doc sigmaDoc
	if err := yaml.Unmarshal([]byte(req.YAML), &doc); err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrCodeMalformedDSL, "invalid sigma yaml", 400, err)
	}

	profileName := req.MappingProfile
	if profileName == "" {
		profileName = "default_cim_v1"
	}
	profile, ok := Profiles[profileName]
	if !ok {
		return Result{}, apperrors.New(apperrors.ErrCodeSigmaUnsupported, fmt.Sprintf("unknown mapping profile %q", profileName), 400)
	}

	selection, ok := doc.Detection["selection"]
	if !ok {
		return Result{}, apperrors.SigmaUnsupported("detection.selection is required")
	}
	selectionMap, ok := selection.(map[string]interface{})
	if !ok {
		return Result{}, apperrors.SigmaUnsupported("detection.selection must be a mapping")
	}

	var warnings []string
	var exprs []*ruledsl.Expr
	for sigmaField, rawValue := range selectionMap {
		cimField, mapped := profile.resolve(sigmaField)
		if !mapped {
			if req.AllowUnmapped {
				warnings = append(warnings, fmt.Sprintf("unmapped sigma field %q skipped", sigmaField))
				continue
			}
			return Result{}, apperrors.UnmappedField(sigmaField)
		}

		switch v := rawValue.(type) {
		case []interface{}:
			values := make([]interface{}, len(v))
			copy(values, v)
			exprs = append(exprs, ruledsl.LeafValues(cimField, ruledsl.CmpIn, values...))
		default:
			exprs = append(exprs, ruledsl.Leaf(cimField, ruledsl.CmpEq, v))
		}
	}

	if len(exprs) == 0 {
		return Result{}, apperrors.SigmaUnsupported("detection.selection produced no usable comparisons")
	}

	var where *ruledsl.Expr
	if len(exprs) == 1 {
		where = exprs[0]
	} else {
		where = ruledsl.And(exprs...)
	}

	lastSeconds := req.LastSeconds
	if lastSeconds <= 0 {
		lastSeconds = 900
	}

	dsl := ruledsl.DSL{
		Version:       "1",
		AllowUnmapped: req.AllowUnmapped,
		Search: ruledsl.SearchSection{
			TimeRange: ruledsl.TimeRange{LastSeconds: lastSeconds},
			Where:     where,
			TenantIDs: req.TenantIDs,
		},
	}

	return Result{
		DSL:      dsl,
		Severity: severityFromLevel(doc.Level),
		Title:    doc.Title,
		Warnings: warnings,
	}, nil
}
