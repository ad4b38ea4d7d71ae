package sigma

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkermemo/sim6-sub001/internal/apperrors"
	"github.com/darkermemo/sim6-sub001/internal/ruledsl"
)

const basicSigma = `
title: Suspicious login from known-bad IP
level: high
logsource:
  category: authentication
detection:
  selection:
    source.ip: "203.0.113.9"
    user.name: "admin"
  condition: selection
`

func TestImport_MapsFieldsAndSeverity(t *testing.T) {
	res, err := Import(Request{YAML: basicSigma})
	require.NoError(t, err)
	require.Equal(t, "HIGH", res.Severity)
	require.Equal(t, "Suspicious login from known-bad IP", res.Title)
	require.NotNil(t, res.DSL.Search.Where)
	require.Equal(t, ruledsl.OpAnd, res.DSL.Search.Where.Bool)
	require.Len(t, res.DSL.Search.Where.Children, 2)
}

func TestImport_UnmappedFieldErrorsByDefault(t *testing.T) {
	doc := `
title: test
level: low
detection:
  selection:
    some.unmapped.field: "x"
  condition: selection
`
	_, err := Import(Request{YAML: doc})
	require.Error(t, err)
	require.Equal(t, apperrors.ErrCodeUnmappedField, apperrors.Code(err))
}

func TestImport_UnmappedFieldToleratedWithAllowUnmapped(t *testing.T) {
	doc := `
title: test
level: low
detection:
  selection:
    some.unmapped.field: "x"
    user.name: "root"
  condition: selection
`
	res, err := Import(Request{YAML: doc, AllowUnmapped: true})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
}

func TestImport_ListValueBecomesInComparator(t *testing.T) {
	doc := `
title: test
level: medium
detection:
  selection:
    user.name:
      - admin
      - root
  condition: selection
`
	res, err := Import(Request{YAML: doc})
	require.NoError(t, err)
	require.Equal(t, ruledsl.CmpIn, res.DSL.Search.Where.Cmp)
}

func TestImport_MissingSelectionErrors(t *testing.T) {
	doc := `
title: test
level: low
detection:
  condition: selection
`
	_, err := Import(Request{YAML: doc})
	require.Error(t, err)
}

func TestImport_InvalidYAMLErrors(t *testing.T) {
	_, err := Import(Request{YAML: "::: not yaml"})
	require.Error(t, err)
}
