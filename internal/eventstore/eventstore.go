// Package eventstore defines the columnar events store contract (spec.md
// §6): only the schema/insertion/query shapes are specified, not a
// particular engine.
package eventstore

import (
	"context"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

// Row is a narrow projection of an events-table row returned by rule
// queries: event_id, event_timestamp, tenant_id, source_type (spec.md §4.5
// step 2).
type Row struct {
	EventID        string
	EventTimestamp int64 // unix millis
	TenantID       string
	SourceType     string
}

// AggregateRow is a generic row returned by analytical aggregation
// queries (internal/ueba's grouped statistics), keyed by column name.
type AggregateRow map[string]interface{}

// EventStore is the minimal surface the sink, batch scheduler, streaming
// runner and UEBA modeler need against the events table.
type EventStore interface {
	// InsertBatch writes a batch of normalized events. Bounded by the
	// caller's context deadline.
	InsertBatch(ctx context.Context, events []cim.Event) error

	// Query executes a rule's compiled SQL against the events table,
	// bounded by a max_execution_time deadline carried on ctx, and returns
	// the narrow projection rule evaluation needs.
	Query(ctx context.Context, sql string, args []interface{}, limit int) ([]Row, error)

	// QueryAggregate executes a parameterized grouped/aggregate query
	// (GROUP BY, SUM, AVG, ...) and returns each result row as a column
	// name to value map, for callers that need more than the narrow Row
	// projection (the UEBA modeler's per-user/per-server statistics).
	QueryAggregate(ctx context.Context, sql string, args []interface{}) ([]AggregateRow, error)
}
