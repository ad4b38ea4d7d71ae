// Package rule defines the persistent Rule/RuleState/Alert/Baseline shapes
// shared by the rule compiler, the batch scheduler, the streaming runner and
// the UEBA modeler.
package rule

import "time"

// Severity is the alert/rule severity scale (spec.md §3).
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Mode selects the execution strategy for a Rule.
type Mode string

const (
	ModeBatch  Mode = "batch"
	ModeStream Mode = "stream"
)

// SourceFormat records how a rule was authored.
type SourceFormat string

const (
	SourceDSL   SourceFormat = "DSL"
	SourceSigma SourceFormat = "SIGMA"
)

// TenantScopeAll is the sentinel tenant_scope value meaning "every tenant".
const TenantScopeAll = "all"

// Rule is a persistent detection definition (spec.md §3, "Rule").
type Rule struct {
	RuleID          string
	TenantScope     string
	Name            string
	Severity        Severity
	Enabled         bool
	Mode            Mode
	DSL             []byte // serialized search/where/threshold/cardinality/sequence tree
	CompiledSQL     string
	SourceFormat    SourceFormat
	OriginalRule    string
	MappingProfile  string
	ScheduleSec     int
	ScheduleCron    string
	StreamWindowSec int
	ThrottleSeconds int
	DedupKey        []string
	GroupBy         []string
	Threshold       int
	Title           string
	Tags            []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EffectiveTenants returns the concrete tenant ids this rule applies to, or
// nil when the rule is scoped to TenantScopeAll (caller must enumerate).
func (r Rule) EffectiveTenants() []string {
	if r.TenantScope == TenantScopeAll || r.TenantScope == "" {
		return nil
	}
	return []string{r.TenantScope}
}

// State is the per-(rule,tenant) checkpoint/throttle record (spec.md §3, "RuleState").
type State struct {
	RuleID       string
	TenantID     string
	LastRunTS    time.Time
	LastSuccess  time.Time
	LastError    string
	LastSQL      string
	DedupHash    string
	LastAlertTS  time.Time
}

// Status is the alert lifecycle state.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusAcked    Status = "ACKED"
	StatusResolved Status = "RESOLVED"
)

// EventRef is a lazy pointer into the events store attached to an Alert.
type EventRef struct {
	EventID        string    `json:"event_id"`
	EventTimestamp time.Time `json:"event_timestamp"`
	SourceType     string    `json:"source_type"`
	TenantID       string    `json:"tenant_id"`
}

// Alert is an append-only detection output (spec.md §3, "Alert").
type Alert struct {
	AlertID         string
	TenantID        string
	RuleID          string
	Title           string
	Description     string
	EventRefs       []EventRef
	Severity        Severity
	Status          Status
	AlertTimestamp  time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Baseline is a UEBA per-entity-metric model (spec.md §3, "Baseline").
type Baseline struct {
	BaselineID            string
	TenantID              string
	EntityID              string
	EntityType            string
	Metric                string
	BaselineValueAvg      float64
	BaselineValueStddev   float64
	SampleCount           int
	CalculationPeriodDays int
	ConfidenceScore       float64
	LastUpdated           time.Time
	CreatedAt             time.Time
}
