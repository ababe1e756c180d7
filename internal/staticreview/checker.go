package staticreview

import (
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strconv"
	"strings"
)

var (
	todoPattern        = regexp.MustCompile(`(?i)\b(TODO|FIXME|HACK|XXX)\b`)
	awsKeyPattern      = regexp.MustCompile(`AKIA[A-Z0-9]{16}`)
	secretVarFragments = []string{"apikey", "api_key", "secret", "password", "passwd", "token", "credential", "accesskey", "privatekey"}
	placeholderMarkers = []string{"dummy", "test_", "mock_", "fake_", "example_", "sample_", "changeme", "your_key_here", "placeholder"}
)

// Checker runs the configured checks against one Go source file at a
// time; unlike the Python original's checker it never needs a Path for
// file IO — callers hand it already-read source text (e.g. a worker's
// staged diff), keeping the check pure and easy to unit test.
type Checker struct {
	cfg Config
}

func NewChecker(cfg Config) *Checker {
	return &Checker{cfg: cfg}
}

// CheckSource parses src as Go and reports violations. isTestFile
// enables the missing-assertions check for _test.go files.
func (c *Checker) CheckSource(filePath string, src []byte) (Result, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, src, parser.ParseComments)
	if err != nil {
		return Result{}, err
	}

	var violations []Violation
	isTestFile := strings.HasSuffix(filePath, "_test.go")

	if c.cfg.CheckTODOs {
		violations = append(violations, c.checkTODOs(fset, file)...)
	}
	if c.cfg.CheckSecrets {
		violations = append(violations, c.checkSecrets(fset, file)...)
	}
	if c.cfg.CheckSwallowedErrors {
		violations = append(violations, c.checkSwallowedErrors(fset, file)...)
	}
	if c.cfg.CheckDebugPrints && !isTestFile {
		violations = append(violations, c.checkDebugPrints(fset, file)...)
	}
	if c.cfg.CheckMissingDoc {
		violations = append(violations, c.checkMissingDoc(fset, file)...)
	}
	if c.cfg.CheckMissingAssertions && isTestFile {
		violations = append(violations, c.checkMissingAssertions(fset, file)...)
	}

	return newResult(filePath, violations), nil
}

func (c *Checker) checkTODOs(fset *token.FileSet, file *ast.File) []Violation {
	var out []Violation
	for _, cg := range file.Comments {
		for _, cm := range cg.List {
			if todoPattern.MatchString(cm.Text) {
				pos := fset.Position(cm.Pos())
				out = append(out, Violation{
					Pattern:     "todo_marker",
					Line:        pos.Line,
					Message:     "TODO/FIXME marker left in committed code",
					Severity:    SeverityError,
					CodeSnippet: strings.TrimSpace(cm.Text),
				})
			}
		}
	}
	return out
}

func (c *Checker) checkSecrets(fset *token.FileSet, file *ast.File) []Violation {
	var out []Violation
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, name := range spec.Names {
			if i >= len(spec.Values) {
				continue
			}
			lit, ok := spec.Values[i].(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			value, err := strconv.Unquote(lit.Value)
			if err != nil {
				continue
			}
			if v := secretViolation(name.Name, value, fset.Position(lit.Pos()).Line); v != nil {
				out = append(out, *v)
			}
		}
		return true
	})
	return out
}

func secretViolation(varName, value string, line int) *Violation {
	lower := strings.ToLower(varName)
	for _, suffix := range []string{"url", "endpoint", "uri", "path", "route"} {
		if strings.HasSuffix(lower, suffix) {
			return nil
		}
	}
	if strings.Contains(lower, "_url_") || strings.Contains(lower, "_endpoint_") {
		return nil
	}

	isSecretName := false
	for _, frag := range secretVarFragments {
		if strings.Contains(lower, frag) {
			isSecretName = true
			break
		}
	}

	if value == "" || value == "..." {
		return nil
	}
	valueLower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(valueLower, marker) {
			return nil
		}
	}
	if valueLower == lower {
		return nil // enum-style MISSING_TOKEN = "missing_token"
	}

	if awsKeyPattern.MatchString(value) {
		return &Violation{Pattern: "hardcoded_secret", Line: line, Message: "AWS access key detected in " + varName, Severity: SeverityError, CodeSnippet: value}
	}
	if isSecretName && len(value) >= 8 {
		return &Violation{Pattern: "hardcoded_secret", Line: line, Message: "hardcoded secret in " + varName, Severity: SeverityError, CodeSnippet: value}
	}
	return nil
}

// checkSwallowedErrors flags `if err != nil {}` with an empty body, the
// Go analogue of bare except clauses. Bare `_ = err` discards are not
// flagged.
func (c *Checker) checkSwallowedErrors(fset *token.FileSet, file *ast.File) []Violation {
	var out []Violation
	ast.Inspect(file, func(n ast.Node) bool {
		ifStmt, ok := n.(*ast.IfStmt)
		if !ok {
			return true
		}
		binExpr, ok := ifStmt.Cond.(*ast.BinaryExpr)
		if !ok || binExpr.Op != token.NEQ {
			return true
		}
		ident, ok := binExpr.X.(*ast.Ident)
		if !ok || ident.Name != "err" {
			return true
		}
		if len(ifStmt.Body.List) == 0 {
			pos := fset.Position(ifStmt.Pos())
			out = append(out, Violation{
				Pattern:  "swallowed_error",
				Line:     pos.Line,
				Message:  "err checked but ignored with an empty block",
				Severity: SeverityError,
			})
		}
		return true
	})
	return out
}

func (c *Checker) checkDebugPrints(fset *token.FileSet, file *ast.File) []Violation {
	var out []Violation
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pkgIdent, ok := sel.X.(*ast.Ident)
		if !ok || pkgIdent.Name != "fmt" {
			return true
		}
		switch sel.Sel.Name {
		case "Println", "Print", "Printf":
			pos := fset.Position(call.Pos())
			out = append(out, Violation{
				Pattern:  "debug_print",
				Line:     pos.Line,
				Message:  "fmt." + sel.Sel.Name + " left in production code",
				Severity: SeverityWarning,
			})
		}
		return true
	})
	return out
}

func (c *Checker) checkMissingDoc(fset *token.FileSet, file *ast.File) []Violation {
	var out []Violation
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || !fn.Name.IsExported() || fn.Doc != nil {
			continue
		}
		pos := fset.Position(fn.Pos())
		out = append(out, Violation{
			Pattern:  "missing_docstring",
			Line:     pos.Line,
			Message:  "exported function " + fn.Name.Name + " has no doc comment",
			Severity: SeverityWarning,
		})
	}
	return out
}

// checkMissingAssertions flags test functions that call no testify
// require/assert or *testing.T Error/Fatal method, the Go analogue of
// detecting a test body with no assertions at all.
func (c *Checker) checkMissingAssertions(fset *token.FileSet, file *ast.File) []Violation {
	var out []Violation
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || !strings.HasPrefix(fn.Name.Name, "Test") || fn.Body == nil {
			continue
		}
		if hasAssertion(fn.Body) {
			continue
		}
		pos := fset.Position(fn.Pos())
		out = append(out, Violation{
			Pattern:  "missing_assertion",
			Line:     pos.Line,
			Message:  "test function " + fn.Name.Name + " has no assertions",
			Severity: SeverityError,
		})
	}
	return out
}

func hasAssertion(body *ast.BlockStmt) bool {
	found := false
	ast.Inspect(body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		switch sel.Sel.Name {
		case "Error", "Errorf", "Fatal", "Fatalf":
			found = true
		}
		if pkgIdent, ok := sel.X.(*ast.Ident); ok && (pkgIdent.Name == "require" || pkgIdent.Name == "assert") {
			found = true
		}
		return true
	})
	return found
}
