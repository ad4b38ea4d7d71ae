package schemacheck

import (
	"regexp"
	"strings"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

// Severity distinguishes findings that must fail CI from ones that merely
// deserve attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Finding is one cross-check result against a SQLReference.
type Finding struct {
	Severity  Severity
	File      string
	Line      int
	Message   string
	Statement string
}

var (
	tableRefRe   = regexp.MustCompile(`(?i)\b(?:FROM|INTO|UPDATE)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)
	devProdRe    = regexp.MustCompile(`(?i)\b(dev|prod)\.[a-zA-Z_]\w*`)
	selectListRe = regexp.MustCompile(`(?is)SELECT\s+(.*?)\s+FROM\s`)
	insertColsRe = regexp.MustCompile(`(?is)INSERT\s+INTO\s+[\w.]+\s*\(([^)]*)\)`)
	setClauseRe  = regexp.MustCompile(`(?is)\bSET\s+(.*?)(?:\bWHERE\b|$)`)
	whereColRe   = regexp.MustCompile(`(?i)([a-zA-Z_][a-zA-Z0-9_]*)\s*(?:=|<>|!=|<=|>=|<|>)\s*[$'\w]`)
)

// sqlNoise holds keywords and built-in functions that the column-candidate
// regexes above will pick up as false positives; they are never column
// names in this codebase's schema and are filtered out before cross-check.
var sqlNoise = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "AND": {}, "OR": {}, "NOT": {}, "NULL": {},
	"IS": {}, "IN": {}, "LIKE": {}, "ORDER": {}, "BY": {}, "GROUP": {}, "HAVING": {},
	"LIMIT": {}, "ASC": {}, "DESC": {}, "AS": {}, "JOIN": {}, "LEFT": {}, "RIGHT": {},
	"INNER": {}, "ON": {}, "VALUES": {}, "INTO": {}, "INSERT": {}, "UPDATE": {}, "SET": {},
	"DELETE": {}, "DISTINCT": {}, "COUNT": {}, "SUM": {}, "AVG": {}, "MIN": {}, "MAX": {},
	"CASE": {}, "WHEN": {}, "THEN": {}, "ELSE": {}, "END": {}, "EXISTS": {}, "BETWEEN": {},
	"CAST": {}, "COALESCE": {}, "NOW": {}, "INTERVAL": {}, "EXTRACT": {}, "HOUR": {},
	"DAY": {}, "TRUE": {}, "FALSE": {}, "WITH": {}, "UNION": {}, "ALL": {}, "CONFLICT": {},
	"DO": {}, "NOTHING": {}, "RETURNING": {}, "TEXT": {},
}

// Analyze cross-checks every SQL reference against the declared schema and
// the CIM column taxonomy, producing unknown-table/unknown-column critical
// findings and hardcoded-schema-prefix warnings.
func Analyze(schema Schema, refs []SQLReference) []Finding {
	var findings []Finding

	for _, ref := range refs {
		if m := devProdRe.FindStringSubmatch(ref.Statement); m != nil {
			findings = append(findings, Finding{
				Severity:  SeverityWarning,
				File:      ref.File,
				Line:      ref.Line,
				Message:   "hardcoded schema prefix \"" + m[1] + ".\" — queries should target the configured schema, not a literal environment name",
				Statement: ref.Statement,
			})
		}

		table, ok := extractTable(ref.Statement)
		if !ok {
			continue
		}
		if !schema.HasTable(table) {
			findings = append(findings, Finding{
				Severity:  SeverityCritical,
				File:      ref.File,
				Line:      ref.Line,
				Message:   "unknown table \"" + table + "\" not declared in schema.sql",
				Statement: ref.Statement,
			})
			continue
		}

		for _, col := range extractColumns(ref.Statement) {
			if schema.HasColumn(table, col) || cim.IsCIMField(col) {
				continue
			}
			findings = append(findings, Finding{
				Severity:  SeverityCritical,
				File:      ref.File,
				Line:      ref.Line,
				Message:   "unknown column \"" + col + "\" referenced against table \"" + table + "\"",
				Statement: ref.Statement,
			})
		}
	}

	return findings
}

func extractTable(sql string) (string, bool) {
	m := tableRefRe.FindStringSubmatch(sql)
	if m == nil {
		return "", false
	}
	name := m[1]
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.ToLower(strings.Trim(name, `"`)), true
}

func extractColumns(sql string) []string {
	var candidates []string

	if m := selectListRe.FindStringSubmatch(sql); m != nil {
		candidates = append(candidates, splitTopLevel(m[1])...)
	}
	if m := insertColsRe.FindStringSubmatch(sql); m != nil {
		candidates = append(candidates, splitTopLevel(m[1])...)
	}
	if m := setClauseRe.FindStringSubmatch(sql); m != nil {
		for _, assignment := range splitTopLevel(m[1]) {
			if eq := strings.Index(assignment, "="); eq >= 0 {
				candidates = append(candidates, strings.TrimSpace(assignment[:eq]))
			}
		}
	}
	for _, m := range whereColRe.FindAllStringSubmatch(sql, -1) {
		candidates = append(candidates, m[1])
	}

	seen := map[string]struct{}{}
	var out []string
	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(strings.Trim(c, `"`)))
		if c == "" || !isPlainIdentifier(c) {
			continue
		}
		if _, noise := sqlNoise[strings.ToUpper(c)]; noise {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func isPlainIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

// splitTopLevel splits a comma list while ignoring commas nested inside
// parens (function call arguments), e.g. "COUNT(*), user_name".
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[last:]))

	var out []string
	for _, p := range parts {
		// "expr AS alias" / "table.column" -> keep just the leading token
		// before any AS/alias or dotted-qualifier noise.
		p = strings.TrimSpace(p)
		if sp := strings.IndexAny(p, " \t("); sp >= 0 {
			p = p[:sp]
		}
		if dot := strings.LastIndex(p, "."); dot >= 0 {
			p = p[dot+1:]
		}
		out = append(out, p)
	}
	return out
}
