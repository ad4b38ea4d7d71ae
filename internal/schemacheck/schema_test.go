package schemacheck

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testDDL = `
CREATE TABLE IF NOT EXISTS events (
    event_id   UUID PRIMARY KEY,
    tenant_id  TEXT NOT NULL,
    bytes_out  BIGINT,
    user_name  TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_tenant ON events (tenant_id);

CREATE TABLE IF NOT EXISTS alerts (
    alert_id  TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    severity  TEXT NOT NULL
);
`

func TestParseSchema_ExtractsTablesAndColumns(t *testing.T) {
	schema, err := ParseSchema([]byte(testDDL))
	require.NoError(t, err)
	require.Len(t, schema, 2)
	require.True(t, schema.HasTable("events"))
	require.True(t, schema.HasColumn("events", "bytes_out"))
	require.True(t, schema.HasColumn("events", "user_name"))
	require.False(t, schema.HasColumn("events", "nonexistent_column"))
	require.True(t, schema.HasTable("alerts"))
	require.False(t, schema.HasTable("missing_table"))
}

func TestParseSchema_IgnoresConstraintLines(t *testing.T) {
	ddl := `
CREATE TABLE IF NOT EXISTS rule_state (
    rule_id   TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    PRIMARY KEY (rule_id, tenant_id)
);
`
	schema, err := ParseSchema([]byte(ddl))
	require.NoError(t, err)
	require.False(t, schema.HasColumn("rule_state", "primary"))
	require.True(t, schema.HasColumn("rule_state", "rule_id"))
}

func TestParseSchema_NoTablesIsError(t *testing.T) {
	_, err := ParseSchema([]byte("-- just a comment"))
	require.Error(t, err)
}
