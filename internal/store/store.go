// Package store defines the metadata store contracts for Rules, RuleState,
// Alerts and Baselines, persisted independently of the columnar events
// store (internal/eventstore).
package store

import (
	"context"

	"github.com/darkermemo/sim6-sub001/internal/rule"
)

// RuleStore persists Rule definitions.
type RuleStore interface {
	CreateRule(ctx context.Context, r rule.Rule) (rule.Rule, error)
	UpdateRule(ctx context.Context, r rule.Rule) (rule.Rule, error)
	GetRule(ctx context.Context, ruleID string) (rule.Rule, error)
	ListEnabledRules(ctx context.Context, mode rule.Mode) ([]rule.Rule, error)
}

// RuleStateStore persists per-(rule,tenant) checkpoint/throttle state.
type RuleStateStore interface {
	GetState(ctx context.Context, ruleID, tenantID string) (rule.State, error)
	UpsertState(ctx context.Context, s rule.State) error
}

// AlertStore persists append-only alerts, idempotent on AlertID.
type AlertStore interface {
	// InsertAlert inserts a alert. Because alert ids are deterministic,
	// a conflicting id is not an error: it is treated as the idempotent
	// re-emission the spec requires, and inserted is reported false.
	InsertAlert(ctx context.Context, a rule.Alert) (inserted bool, err error)
}

// BaselineStore persists UEBA baselines, overwritten per modeling cycle.
type BaselineStore interface {
	UpsertBaseline(ctx context.Context, b rule.Baseline) error
	GetBaseline(ctx context.Context, tenantID, entityID, metric string) (rule.Baseline, bool, error)
}
