package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

func TestInsertBatch_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(sqlx.NewDb(db, "postgres"))
	require.NoError(t, store.InsertBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_CommitsTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO events")
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := New(sqlx.NewDb(db, "postgres"))
	events := []cim.Event{{
		EventID:            uuid.New(),
		TenantID:           "tenant-a",
		EventTimestamp:     time.Now(),
		IngestionTimestamp: time.Now(),
		RawEvent:           `{"msg":"hi"}`,
		ParsingStatus:      cim.StatusSuccess,
		Message:            "hi",
	}}
	require.NoError(t, store.InsertBatch(context.Background(), events))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_AppendsLimitPlaceholder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"event_id", "event_timestamp", "tenant_id", "source_type"}).
		AddRow("evt-1", int64(1000), "tenant-a", "firewall")
	mock.ExpectQuery(`SELECT event_id.* LIMIT \$2`).WithArgs("tenant-a", 10).WillReturnRows(rows)

	store := New(sqlx.NewDb(db, "postgres"))
	result, err := store.Query(context.Background(), "SELECT event_id, event_timestamp, tenant_id, source_type FROM events WHERE tenant_id = $1", []interface{}{"tenant-a"}, 10)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "evt-1", result[0].EventID)
	require.NoError(t, mock.ExpectationsWereMet())
}
