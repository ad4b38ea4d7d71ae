// Package schemacheck is the offline schema/SQL-literal auditor (spec.md
// §4.9): it parses the declared DDL into a table/column model, walks the
// Go source tree for string literals that look like SQL, and cross-checks
// identifiers against the declared schema plus the CIM column set.
//
// Grounded in original_source/schema_validator_v2.rs and
// schema_validator_v3.rs's shape (DDL model -> scan -> cross-check -> dual
// output), re-expressed with go/parser and go/ast instead of a regex/string
// scanner over the source files, since Go ships a real parser for this job.
// The DDL itself is still read with a small regex, matching the original's
// own approach to that half of the problem — there is no ecosystem SQL DDL
// parser in the teacher's dependency pack to reach for instead.
package schemacheck

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Table is a table name to its declared columns.
type Table struct {
	Name    string
	Columns map[string]string // column name -> declared SQL type
}

// Schema is the full declared DDL model, keyed by table name.
type Schema map[string]Table

var (
	createTableRe = regexp.MustCompile(`(?is)CREATE\s+TABLE\s+IF\s+NOT\s+EXISTS\s+([\w.]+)\s*\(([^;]*)\)\s*;`)
	columnLineRe  = regexp.MustCompile(`(?m)^\s*([a-zA-Z_][a-zA-Z0-9_]*)\s+([A-Za-z][\w()\[\]]*)`)
)

// reservedColumnWords are DDL keywords that can open a line inside a
// CREATE TABLE body without being a column (constraints), so a "column"
// regex match on these is discarded.
var reservedColumnWords = map[string]struct{}{
	"PRIMARY": {}, "FOREIGN": {}, "UNIQUE": {}, "CHECK": {}, "CONSTRAINT": {},
}

// ParseSchema parses CREATE TABLE IF NOT EXISTS statements out of a DDL
// file's contents into a table/column model. It intentionally ignores
// indexes, constraints, and anything after the closing paren of each
// table body — this is an audit tool, not a DDL engine.
func ParseSchema(ddl []byte) (Schema, error) {
	schema := Schema{}
	content := string(ddl)

	for _, m := range createTableRe.FindAllStringSubmatch(content, -1) {
		tableName := strings.ToLower(strings.TrimSpace(m[1]))
		body := m[2]

		table := Table{Name: tableName, Columns: map[string]string{}}
		for _, cm := range columnLineRe.FindAllStringSubmatch(body, -1) {
			colName := cm[1]
			if _, reserved := reservedColumnWords[strings.ToUpper(colName)]; reserved {
				continue
			}
			table.Columns[strings.ToLower(colName)] = strings.ToUpper(cm[2])
		}
		schema[tableName] = table
	}

	if len(schema) == 0 {
		return nil, fmt.Errorf("no CREATE TABLE statements found in DDL")
	}
	return schema, nil
}

// LoadSchema reads and parses a DDL file from disk.
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return ParseSchema(data)
}

// HasColumn reports whether table.column is declared.
func (s Schema) HasColumn(table, column string) bool {
	t, ok := s[strings.ToLower(table)]
	if !ok {
		return false
	}
	_, ok = t.Columns[strings.ToLower(column)]
	return ok
}

// HasTable reports whether table is declared.
func (s Schema) HasTable(table string) bool {
	_, ok := s[strings.ToLower(table)]
	return ok
}
