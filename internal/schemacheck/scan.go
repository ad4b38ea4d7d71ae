package schemacheck

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// SQLReference is one string literal in the Go source tree that looks like
// a SQL statement.
type SQLReference struct {
	File      string
	Line      int
	Statement string
}

var sqlKeywordRe = regexp.MustCompile(`(?i)^\s*(SELECT|INSERT|UPDATE|DELETE|WITH)\b`)

// ScanGoSQL walks every .go file under root (skipping vendor/ and test
// files' golden-data fixtures are not special-cased — a SQL-shaped string
// anywhere is audited) and collects string literals whose trimmed content
// starts with a SQL keyword.
func ScanGoSQL(root string) ([]SQLReference, error) {
	var refs []SQLReference

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "vendor" || d.Name() == "_examples" || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		fset := token.NewFileSet()
		file, perr := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if perr != nil {
			// Not this tool's job to report Go syntax errors; skip.
			return nil
		}

		ast.Inspect(file, func(n ast.Node) bool {
			lit, ok := n.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				return true
			}
			text, uerr := strconv.Unquote(lit.Value)
			if uerr != nil {
				text = strings.Trim(lit.Value, "`\"")
			}
			if !sqlKeywordRe.MatchString(text) {
				return true
			}
			pos := fset.Position(lit.Pos())
			refs = append(refs, SQLReference{
				File:      path,
				Line:      pos.Line,
				Statement: text,
			})
			return true
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}
