// Package postgres is a reference implementation of eventstore.EventStore
// against any Postgres-wire-compatible columnar engine, sufficient for the
// scheduler/runner/modeler to exercise in tests via sqlmock and against a
// real deployment. Grounded on the same sqlx/lib/pq idiom as
// internal/store/postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/darkermemo/sim6-sub001/internal/cim"
	"github.com/darkermemo/sim6-sub001/internal/eventstore"
)

// Store implements eventstore.EventStore.
type Store struct {
	db *sqlx.DB
}

// New wraps an open sqlx.DB connection.
func New(db *sqlx.DB) *Store { return &Store{db: db} }

// InsertBatch writes a batch of normalized events inside one transaction,
// executing a prepared single-row INSERT once per event, in the column order
// of internal/store/schema.sql.
func (s *Store) InsertBatch(ctx context.Context, events []cim.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO events (
			event_id, tenant_id, event_timestamp, ingestion_timestamp, raw_event,
			parsing_status, parse_error_msg,
			source_ip, source_port, destination_ip, destination_port, protocol,
			network_direction, bytes_in, bytes_out, packets_in, packets_out,
			user_name, user_id, user_domain, authentication_method, authentication_result,
			host_name, host_ip, operating_system, host_type,
			process_name, process_id, process_path, parent_process_name, parent_process_id, command_line,
			file_path, file_name, file_size, file_hash, file_hash_type,
			url, http_method, http_status_code, user_agent, referer,
			event_type, severity, category, action, result, threat_name, signature_id,
			message, custom_fields
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,
			$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40,$41,$42,
			$43,$44,$45,$46,$47,$48,$49,$50,$51
		) ON CONFLICT (event_id) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		custom, err := json.Marshal(e.CustomFields)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			e.EventID, e.TenantID, e.EventTimestamp, e.IngestionTimestamp, e.RawEvent,
			e.ParsingStatus, e.ParseErrorMsg,
			e.SourceIP, e.SourcePort, e.DestinationIP, e.DestinationPort, e.Protocol,
			e.NetworkDirection, e.BytesIn, e.BytesOut, e.PacketsIn, e.PacketsOut,
			e.UserName, e.UserID, e.UserDomain, e.AuthenticationMethod, e.AuthenticationResult,
			e.HostName, e.HostIP, e.OperatingSystem, e.HostType,
			e.ProcessName, e.ProcessID, e.ProcessPath, e.ParentProcessName, e.ParentProcessID, e.CommandLine,
			e.FilePath, e.FileName, e.FileSize, e.FileHash, e.FileHashType,
			e.URL, e.HTTPMethod, e.HTTPStatusCode, e.UserAgent, e.Referer,
			e.EventType, e.Severity, e.Category, e.Action, e.Result, e.ThreatName, e.SignatureID,
			e.Message, custom,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Query executes a rule's compiled SQL with a LIMIT and returns the narrow
// projection rule evaluation needs (spec.md §4.5 step 2).
func (s *Store) Query(ctx context.Context, sql string, args []interface{}, limit int) ([]eventstore.Row, error) {
	limited := fmt.Sprintf("%s LIMIT $%d", sql, len(args)+1)
	rows, err := s.db.QueryContext(ctx, limited, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventstore.Row
	for rows.Next() {
		var r eventstore.Row
		if err := rows.Scan(&r.EventID, &r.EventTimestamp, &r.TenantID, &r.SourceType); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// QueryAggregate executes a parameterized grouped/aggregate query and
// returns each row as a column-to-value map, via sqlx's MapScan.
func (s *Store) QueryAggregate(ctx context.Context, sql string, args []interface{}) ([]eventstore.AggregateRow, error) {
	rows, err := s.db.QueryxContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventstore.AggregateRow
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		result = append(result, eventstore.AggregateRow(row))
	}
	return result, rows.Err()
}
