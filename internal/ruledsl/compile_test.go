package ruledsl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompile_SimpleEquality(t *testing.T) {
	dsl := DSL{
		Search: SearchSection{
			TimeRange: TimeRange{LastSeconds: 3600},
			Where:     Leaf("source_ip", CmpEq, "10.0.0.1"),
			TenantIDs: []string{"tenant-a"},
		},
	}
	res, err := Compile(dsl, "events")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "tenant_id IN ($1)")
	require.Contains(t, res.SQL, "event_timestamp >= now() - interval '3600 seconds'")
	require.Contains(t, res.SQL, "source_ip = $2")
	require.Equal(t, []interface{}{"tenant-a", "10.0.0.1"}, res.Args)
}

func TestCompile_AndOrNot(t *testing.T) {
	dsl := DSL{
		Search: SearchSection{
			TimeRange: TimeRange{LastSeconds: 60},
			Where: And(
				Leaf("severity", CmpEq, "HIGH"),
				Not(Leaf("user_name", CmpEq, "svc-account")),
				Or(Leaf("event_type", CmpEq, "login"), Leaf("event_type", CmpEq, "logout")),
			),
		},
	}
	res, err := Compile(dsl, "events")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "severity = $1")
	require.Contains(t, res.SQL, "NOT (user_name = $2)")
	require.Contains(t, res.SQL, "event_type = $3")
	require.Contains(t, res.SQL, " OR ")
}

func TestCompile_Threshold(t *testing.T) {
	dsl := DSL{
		Search:    SearchSection{TimeRange: TimeRange{LastSeconds: 300}},
		Threshold: &Threshold{Count: 5, Window: 300, GroupBy: []string{"source_ip"}},
	}
	res, err := Compile(dsl, "events")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "GROUP BY source_ip")
	require.Contains(t, res.SQL, "HAVING count(*) >= $1")
}

func TestCompile_Cardinality(t *testing.T) {
	dsl := DSL{
		Search:      SearchSection{TimeRange: TimeRange{LastSeconds: 300}},
		Cardinality: &Cardinality{Field: "destination_ip", Unique: 10, Window: 300},
	}
	res, err := Compile(dsl, "events")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "HAVING count(DISTINCT destination_ip) >= $1")
}

func TestCompile_CustomFieldRoutesThroughJSONAccessor(t *testing.T) {
	dsl := DSL{
		Search: SearchSection{
			TimeRange: TimeRange{LastSeconds: 60},
			Where:     Leaf("vendor_custom_code", CmpEq, "X1"),
		},
	}
	res, err := Compile(dsl, "events")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "custom_fields->>'vendor_custom_code' = $1")
}

func TestCompile_DisallowedIdentifierErrors(t *testing.T) {
	dsl := DSL{
		Search: SearchSection{
			Where: Leaf("bad field!", CmpEq, "x"),
		},
	}
	_, err := Compile(dsl, "events")
	require.Error(t, err)
}

func TestCompile_AllowUnmappedEmitsWarning(t *testing.T) {
	dsl := DSL{
		AllowUnmapped: true,
		Search: SearchSection{
			Where: Leaf("bad field!", CmpEq, "x"),
		},
	}
	res, err := Compile(dsl, "events")
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
}

func TestCompile_InAndBetween(t *testing.T) {
	dsl := DSL{
		Search: SearchSection{
			Where: And(
				LeafValues("protocol", CmpIn, "tcp", "udp"),
				LeafValues("bytes_in", CmpBetween, 100, 5000),
			),
		},
	}
	res, err := Compile(dsl, "events")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "protocol IN ($1, $2)")
	require.Contains(t, res.SQL, "bytes_in BETWEEN $3 AND $4")
}
