// Package postgres is the sqlx-backed implementation of the metadata store
// contracts in internal/store, grounded on
// packages/com.r3e.services.automation/store_postgres.go's
// parameterized-query, NullTime-handling idiom.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/darkermemo/sim6-sub001/internal/rule"
)

// Store is a sqlx.DB-backed implementation of store.RuleStore,
// store.RuleStateStore, store.AlertStore and store.BaselineStore.
type Store struct {
	db *sqlx.DB
}

// New wraps an open sqlx.DB connection.
func New(db *sqlx.DB) *Store { return &Store{db: db} }

// Open opens a Postgres connection pool via lib/pq and wraps it with sqlx.
func Open(dsn string, maxOpen, maxIdle int, connMaxLifetimeSec int) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Duration(connMaxLifetimeSec) * time.Second)
	return &Store{db: db}, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func fromNullTime(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time.UTC()
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// CreateRule inserts a new rule row.
func (s *Store) CreateRule(ctx context.Context, r rule.Rule) (rule.Rule, error) {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (rule_id, tenant_scope, name, severity, enabled, mode, dsl,
			compiled_sql, source_format, original_rule, mapping_profile, schedule_sec,
			schedule_cron, stream_window_sec, throttle_seconds, dedup_key, group_by,
			threshold, title, tags, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`, r.RuleID, r.TenantScope, r.Name, r.Severity, r.Enabled, r.Mode, r.DSL,
		toNullString(r.CompiledSQL), r.SourceFormat, toNullString(r.OriginalRule), r.MappingProfile,
		r.ScheduleSec, toNullString(r.ScheduleCron), r.StreamWindowSec, r.ThrottleSeconds,
		pq.Array(r.DedupKey), pq.Array(r.GroupBy), r.Threshold, r.Title, pq.Array(r.Tags),
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return rule.Rule{}, err
	}
	return r, nil
}

// UpdateRule updates an existing rule row by rule_id.
func (s *Store) UpdateRule(ctx context.Context, r rule.Rule) (rule.Rule, error) {
	existing, err := s.GetRule(ctx, r.RuleID)
	if err != nil {
		return rule.Rule{}, err
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET tenant_scope=$2, name=$3, severity=$4, enabled=$5, mode=$6, dsl=$7,
			compiled_sql=$8, source_format=$9, original_rule=$10, mapping_profile=$11,
			schedule_sec=$12, schedule_cron=$13, stream_window_sec=$14, throttle_seconds=$15,
			dedup_key=$16, group_by=$17, threshold=$18, title=$19, tags=$20, updated_at=$21
		WHERE rule_id=$1
	`, r.RuleID, r.TenantScope, r.Name, r.Severity, r.Enabled, r.Mode, r.DSL,
		toNullString(r.CompiledSQL), r.SourceFormat, toNullString(r.OriginalRule), r.MappingProfile,
		r.ScheduleSec, toNullString(r.ScheduleCron), r.StreamWindowSec, r.ThrottleSeconds,
		pq.Array(r.DedupKey), pq.Array(r.GroupBy), r.Threshold, r.Title, pq.Array(r.Tags), r.UpdatedAt)
	if err != nil {
		return rule.Rule{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return rule.Rule{}, sql.ErrNoRows
	}
	return r, nil
}

// GetRule reads a single rule by id.
func (s *Store) GetRule(ctx context.Context, ruleID string) (rule.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT rule_id, tenant_scope, name, severity, enabled, mode, dsl, compiled_sql,
			source_format, original_rule, mapping_profile, schedule_sec, schedule_cron,
			stream_window_sec, throttle_seconds, dedup_key, group_by, threshold, title, tags,
			created_at, updated_at
		FROM rules WHERE rule_id=$1
	`, ruleID)
	return scanRule(row)
}

// ListEnabledRules returns every enabled rule matching the given execution mode.
func (s *Store) ListEnabledRules(ctx context.Context, mode rule.Mode) ([]rule.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, tenant_scope, name, severity, enabled, mode, dsl, compiled_sql,
			source_format, original_rule, mapping_profile, schedule_sec, schedule_cron,
			stream_window_sec, throttle_seconds, dedup_key, group_by, threshold, title, tags,
			created_at, updated_at
		FROM rules WHERE enabled=true AND mode=$1
		ORDER BY rule_id
	`, mode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rule.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (rule.Rule, error) {
	var (
		r              rule.Rule
		compiledSQL    sql.NullString
		originalRule   sql.NullString
		scheduleCron   sql.NullString
		dedupKey       pq.StringArray
		groupBy        pq.StringArray
		tags           pq.StringArray
	)
	err := row.Scan(&r.RuleID, &r.TenantScope, &r.Name, &r.Severity, &r.Enabled, &r.Mode, &r.DSL,
		&compiledSQL, &r.SourceFormat, &originalRule, &r.MappingProfile, &r.ScheduleSec, &scheduleCron,
		&r.StreamWindowSec, &r.ThrottleSeconds, &dedupKey, &groupBy, &r.Threshold, &r.Title, &tags,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return rule.Rule{}, err
	}
	r.CompiledSQL = compiledSQL.String
	r.OriginalRule = originalRule.String
	r.ScheduleCron = scheduleCron.String
	r.DedupKey = []string(dedupKey)
	r.GroupBy = []string(groupBy)
	r.Tags = []string(tags)
	return r, nil
}

// GetState reads a rule's checkpoint/throttle state for a tenant, returning
// a zero-value State if no row exists yet.
func (s *Store) GetState(ctx context.Context, ruleID, tenantID string) (rule.State, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT rule_id, tenant_id, last_run_ts, last_success, last_error, last_sql, dedup_hash, last_alert_ts
		FROM rule_state WHERE rule_id=$1 AND tenant_id=$2
	`, ruleID, tenantID)

	var (
		st          rule.State
		lastRun     sql.NullTime
		lastSuccess sql.NullTime
		lastError   sql.NullString
		lastSQL     sql.NullString
		dedupHash   sql.NullString
		lastAlert   sql.NullTime
	)
	err := row.Scan(&st.RuleID, &st.TenantID, &lastRun, &lastSuccess, &lastError, &lastSQL, &dedupHash, &lastAlert)
	if errors.Is(err, sql.ErrNoRows) {
		return rule.State{RuleID: ruleID, TenantID: tenantID}, nil
	}
	if err != nil {
		return rule.State{}, err
	}
	st.LastRunTS = fromNullTime(lastRun)
	st.LastSuccess = fromNullTime(lastSuccess)
	st.LastError = lastError.String
	st.LastSQL = lastSQL.String
	st.DedupHash = dedupHash.String
	st.LastAlertTS = fromNullTime(lastAlert)
	return st, nil
}

// UpsertState writes the latest checkpoint/throttle state for a rule+tenant.
func (s *Store) UpsertState(ctx context.Context, st rule.State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_state (rule_id, tenant_id, last_run_ts, last_success, last_error, last_sql, dedup_hash, last_alert_ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (rule_id, tenant_id) DO UPDATE SET
			last_run_ts=$3, last_success=$4, last_error=$5, last_sql=$6, dedup_hash=$7, last_alert_ts=$8
	`, st.RuleID, st.TenantID, toNullTime(st.LastRunTS), toNullTime(st.LastSuccess),
		toNullString(st.LastError), toNullString(st.LastSQL), toNullString(st.DedupHash), toNullTime(st.LastAlertTS))
	return err
}

// InsertAlert inserts an alert row. A conflicting alert_id is the expected
// idempotent re-emission path (deterministic ids, spec.md §4.5/§4.6) and is
// reported via inserted=false rather than an error.
func (s *Store) InsertAlert(ctx context.Context, a rule.Alert) (bool, error) {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = rule.StatusOpen
	}

	refs, err := json.Marshal(a.EventRefs)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (alert_id, tenant_id, rule_id, title, description, event_refs, severity,
			status, alert_timestamp, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (alert_id) DO NOTHING
	`, a.AlertID, a.TenantID, a.RuleID, a.Title, a.Description, refs, a.Severity, a.Status,
		a.AlertTimestamp, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// UpsertBaseline overwrites the baseline for (tenant, entity, metric).
func (s *Store) UpsertBaseline(ctx context.Context, b rule.Baseline) error {
	now := time.Now().UTC()
	b.LastUpdated = now
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baselines (baseline_id, tenant_id, entity_id, entity_type, metric,
			baseline_value_avg, baseline_value_stddev, sample_count, calculation_period_days,
			confidence_score, last_updated, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (tenant_id, entity_id, metric) DO UPDATE SET
			baseline_value_avg=$6, baseline_value_stddev=$7, sample_count=$8,
			calculation_period_days=$9, confidence_score=$10, last_updated=$11
	`, b.BaselineID, b.TenantID, b.EntityID, b.EntityType, b.Metric, b.BaselineValueAvg,
		b.BaselineValueStddev, b.SampleCount, b.CalculationPeriodDays, b.ConfidenceScore,
		b.LastUpdated, b.CreatedAt)
	return err
}

// GetBaseline reads the current baseline for (tenant, entity, metric), if any.
func (s *Store) GetBaseline(ctx context.Context, tenantID, entityID, metric string) (rule.Baseline, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT baseline_id, tenant_id, entity_id, entity_type, metric, baseline_value_avg,
			baseline_value_stddev, sample_count, calculation_period_days, confidence_score,
			last_updated, created_at
		FROM baselines WHERE tenant_id=$1 AND entity_id=$2 AND metric=$3
	`, tenantID, entityID, metric)

	var b rule.Baseline
	err := row.Scan(&b.BaselineID, &b.TenantID, &b.EntityID, &b.EntityType, &b.Metric,
		&b.BaselineValueAvg, &b.BaselineValueStddev, &b.SampleCount, &b.CalculationPeriodDays,
		&b.ConfidenceScore, &b.LastUpdated, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rule.Baseline{}, false, nil
	}
	if err != nil {
		return rule.Baseline{}, false, err
	}
	return b, true, nil
}
