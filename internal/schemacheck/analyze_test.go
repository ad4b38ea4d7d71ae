package schemacheck

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) Schema {
	t.Helper()
	schema, err := ParseSchema([]byte(testDDL))
	require.NoError(t, err)
	return schema
}

func TestAnalyze_FlagsUnknownTable(t *testing.T) {
	refs := []SQLReference{{File: "x.go", Line: 10, Statement: "SELECT * FROM nonexistent_table WHERE tenant_id = $1"}}
	findings := Analyze(testSchema(t), refs)
	require.Len(t, findings, 1)
	require.Equal(t, SeverityCritical, findings[0].Severity)
	require.Contains(t, findings[0].Message, "unknown table")
}

func TestAnalyze_FlagsUnknownColumn(t *testing.T) {
	refs := []SQLReference{{File: "x.go", Line: 10, Statement: "SELECT bogus_column FROM events WHERE tenant_id = $1"}}
	findings := Analyze(testSchema(t), refs)
	require.Len(t, findings, 1)
	require.Equal(t, SeverityCritical, findings[0].Severity)
	require.Contains(t, findings[0].Message, "bogus_column")
}

func TestAnalyze_AllowsDeclaredAndCIMColumns(t *testing.T) {
	refs := []SQLReference{{File: "x.go", Line: 10, Statement: "SELECT bytes_out, source_ip FROM events WHERE tenant_id = $1"}}
	findings := Analyze(testSchema(t), refs)
	require.Empty(t, findings)
}

func TestAnalyze_WarnsOnHardcodedSchemaPrefix(t *testing.T) {
	refs := []SQLReference{{File: "x.go", Line: 10, Statement: "SELECT tenant_id FROM dev.events WHERE tenant_id = $1"}}
	findings := Analyze(testSchema(t), refs)

	var sawWarning bool
	for _, f := range findings {
		if f.Severity == SeverityWarning {
			sawWarning = true
		}
	}
	require.True(t, sawWarning)
}

func TestExtractTable_StripsSchemaPrefix(t *testing.T) {
	table, ok := extractTable("SELECT * FROM prod.events WHERE 1=1")
	require.True(t, ok)
	require.Equal(t, "events", table)
}

func TestSplitTopLevel_IgnoresNestedCommas(t *testing.T) {
	parts := splitTopLevel("COUNT(*), user_name, SUM(bytes_out)")
	require.Equal(t, []string{"COUNT", "user_name", "SUM"}, parts)
}
