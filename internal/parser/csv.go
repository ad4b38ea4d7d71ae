package parser

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// csvGrammar handles a single-line vendor CSV export whose first field names
// its own header inline, e.g. "firewall_v1,10.0.0.1,22,deny". Detection
// requires a registered header profile for the leading token so arbitrary
// comma-separated free text doesn't get claimed here.
type csvGrammar struct{}

// CSVProfiles maps a leading vendor tag to its ordered column names. Callers
// add vendor-specific profiles via RegisterCSVProfile.
var CSVProfiles = map[string][]string{}

// RegisterCSVProfile adds a vendor CSV column profile, keyed by the literal
// tag expected in the payload's first column.
func RegisterCSVProfile(tag string, columns []string) {
	CSVProfiles[tag] = columns
}

func (csvGrammar) Name() string { return "vendor_csv" }

func (csvGrammar) Detect(raw []byte) bool {
	tag := leadingCSVTag(raw)
	_, ok := CSVProfiles[tag]
	return ok
}

func (csvGrammar) Parse(raw []byte) (map[string]interface{}, error) {
	tag := leadingCSVTag(raw)
	columns, ok := CSVProfiles[tag]
	if !ok {
		return nil, fmt.Errorf("vendor_csv: no profile registered for tag %q", tag)
	}

	r := csv.NewReader(strings.NewReader(string(raw)))
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("vendor_csv: %w", err)
	}

	fields := make(map[string]interface{}, len(record))
	for i, col := range columns {
		if i >= len(record) {
			break
		}
		fields[CanonicalFieldName(col)] = record[i]
	}
	return fields, nil
}

func leadingCSVTag(raw []byte) string {
	s := string(raw)
	if idx := strings.IndexByte(s, ','); idx >= 0 {
		return s[:idx]
	}
	return s
}
