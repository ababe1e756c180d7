// Package staticreview is a static quality check for generated Go code,
// grounded on ast_checker.py's ASTQualityChecker: it walks the syntax
// tree of a source file looking for patterns a test suite won't catch
// (hardcoded secrets, TODO markers, swallowed errors, debug prints,
// undocumented exported identifiers) and reports one violation per
// finding with an error/warning severity. The worker pipeline does not
// call it; a task reaches "complete" without a static review pass.
//
// The Python original parses Python source with the ast module; the
// natural Go analogue is go/parser + go/ast over Go source, so this
// package is deliberately stdlib-only for the tree walk itself — there
// is no third-party Go static-analysis library in the example corpus,
// and go/ast is the idiomatic, canonical way to inspect Go syntax.
package staticreview

import "time"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Violation struct {
	Pattern     string
	Line        int
	Message     string
	Severity    Severity
	CodeSnippet string
}

// Result is one file's review outcome. IsBlocking mirrors
// ASTCheckResult.is_blocking: true iff any violation is error-level.
type Result struct {
	FilePath   string
	Violations []Violation
	IsBlocking bool
	CheckedAt  time.Time
}

func newResult(filePath string, violations []Violation) Result {
	blocking := false
	for _, v := range violations {
		if v.Severity == SeverityError {
			blocking = true
			break
		}
	}
	return Result{FilePath: filePath, Violations: violations, IsBlocking: blocking, CheckedAt: time.Now()}
}

// Config toggles individual checks, mirroring ASTCheckConfig's flags.
type Config struct {
	CheckSecrets           bool
	CheckTODOs             bool
	CheckMissingDoc        bool
	CheckSwallowedErrors   bool
	CheckDebugPrints       bool
	CheckMissingAssertions bool
}

func DefaultConfig() Config {
	return Config{
		CheckSecrets:           true,
		CheckTODOs:             true,
		CheckMissingDoc:        false,
		CheckSwallowedErrors:   true,
		CheckDebugPrints:       false,
		CheckMissingAssertions: true,
	}
}
