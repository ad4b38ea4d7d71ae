// Command schemacheck is the offline CI check for spec.md §4.9: it cross
// references SQL literals embedded in the Go tree against the declared
// schema and exits non-zero on any critical finding (unknown table or
// column).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/darkermemo/sim6-sub001/internal/schemacheck"
)

func main() {
	schemaPath := flag.String("schema", "internal/store/schema.sql", "path to the declared DDL")
	srcRoot := flag.String("src", ".", "root directory to scan for SQL literals")
	jsonPath := flag.String("json", "", "optional path to write the report as JSON")
	flag.Parse()

	report, err := schemacheck.Build(*schemaPath, *srcRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "schemacheck:", err)
		os.Exit(2)
	}

	fmt.Print(report.Markdown())

	if *jsonPath != "" {
		data, err := report.JSON()
		if err != nil {
			fmt.Fprintln(os.Stderr, "schemacheck: encode json:", err)
			os.Exit(2)
		}
		if err := os.WriteFile(*jsonPath, data, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "schemacheck: write json:", err)
			os.Exit(2)
		}
	}

	if report.CriticalCount() > 0 {
		os.Exit(1)
	}
}
