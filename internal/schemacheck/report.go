package schemacheck

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Report is the full audit result: every finding plus counts, ready for
// Markdown or JSON rendering.
type Report struct {
	Findings      []Finding `json:"findings"`
	TablesScanned int       `json:"tables_scanned"`
	QueriesFound  int       `json:"queries_found"`
}

// CriticalCount reports how many findings are critical (the exit-1 trigger).
func (r Report) CriticalCount() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// Markdown renders the report as a human-readable Markdown document.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Schema Validation Report\n\n")
	fmt.Fprintf(&b, "- Tables declared: %d\n", r.TablesScanned)
	fmt.Fprintf(&b, "- SQL literals scanned: %d\n", r.QueriesFound)
	fmt.Fprintf(&b, "- Critical findings: %d\n", r.CriticalCount())
	fmt.Fprintf(&b, "- Warnings: %d\n\n", len(r.Findings)-r.CriticalCount())

	if len(r.Findings) == 0 {
		b.WriteString("No issues found.\n")
		return b.String()
	}

	for _, f := range r.Findings {
		icon := "⚠️"
		if f.Severity == SeverityCritical {
			icon = "🛑"
		}
		fmt.Fprintf(&b, "%s **%s** `%s:%d` — %s\n\n", icon, strings.ToUpper(string(f.Severity)), f.File, f.Line, f.Message)
	}
	return b.String()
}

// JSON renders the report as indented JSON.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Build runs the full pipeline: load schema, scan source, cross-check.
func Build(schemaPath, srcRoot string) (Report, error) {
	schema, err := LoadSchema(schemaPath)
	if err != nil {
		return Report{}, err
	}
	refs, err := ScanGoSQL(srcRoot)
	if err != nil {
		return Report{}, err
	}
	findings := Analyze(schema, refs)
	return Report{Findings: findings, TablesScanned: len(schema), QueriesFound: len(refs)}, nil
}
