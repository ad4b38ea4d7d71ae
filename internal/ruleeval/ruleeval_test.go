package ruleeval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkermemo/sim6-sub001/internal/cim"
	"github.com/darkermemo/sim6-sub001/internal/ruledsl"
)

func sampleEnvelope(t *testing.T) Envelope {
	t.Helper()
	e := &cim.Event{
		SourceIP:     "10.0.0.1",
		Severity:     "HIGH",
		BytesOut:     5000,
		CustomFields: map[string]interface{}{"vendor_code": "X1"},
	}
	env, err := FromEvent(e)
	require.NoError(t, err)
	return env
}

func TestEval_Equality(t *testing.T) {
	env := sampleEnvelope(t)
	ok, err := Eval(ruledsl.Leaf("source_ip", ruledsl.CmpEq, "10.0.0.1"), env)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEval_CustomFieldAccessor(t *testing.T) {
	env := sampleEnvelope(t)
	ok, err := Eval(ruledsl.Leaf("vendor_code", ruledsl.CmpEq, "X1"), env)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEval_NumericComparators(t *testing.T) {
	env := sampleEnvelope(t)
	ok, err := Eval(ruledsl.Leaf("bytes_out", ruledsl.CmpGte, 1000), env)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEval_AndOrNot(t *testing.T) {
	env := sampleEnvelope(t)
	expr := ruledsl.And(
		ruledsl.Leaf("severity", ruledsl.CmpEq, "HIGH"),
		ruledsl.Not(ruledsl.Leaf("source_ip", ruledsl.CmpEq, "9.9.9.9")),
	)
	ok, err := Eval(expr, env)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEval_NotExists(t *testing.T) {
	env := sampleEnvelope(t)
	ok, err := Eval(ruledsl.Leaf("host_name", ruledsl.CmpNotExists, nil), env)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGroupKey(t *testing.T) {
	env := sampleEnvelope(t)
	require.Equal(t, "10.0.0.1|HIGH", GroupKey(env, []string{"source_ip", "severity"}))
}
