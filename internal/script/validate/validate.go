// Package validate provides parse-only validation for .script files,
// producing structured JSON-friendly output for the editor and the CLI.
package validate

import (
	"os"
	"strings"

	"github.com/holla2040/droidscript/internal/script/parser"
)

// ValidationError describes a single diagnostic found during validation.
type ValidationError struct {
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"` // "error" or "warning"
	Message  string `json:"message"`
	Context  string `json:"context,omitempty"` // source line for reference
}

// ValidationResult is the outcome of validating a script source. Valid means
// no diagnostic was fatal; warnings alone keep a script valid.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Statements int               `json:"statements"`
	Message    string            `json:"message"`
	Error      string            `json:"error,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
}

// ValidateSource lexes and parses source, collecting every diagnostic.
func ValidateSource(source string) *ValidationResult {
	lines := strings.Split(source, "\n")
	prog, diags := parser.ParseSource(source)

	result := &ValidationResult{Valid: true, Statements: len(prog.Statements)}
	for _, d := range diags {
		result.Errors = append(result.Errors, ValidationError{
			Line:     d.Line,
			Column:   d.Column,
			Severity: d.Severity,
			Message:  d.Message,
			Context:  contextLine(lines, d.Line),
		})
	}

	if fatal, ok := parser.FirstFatal(diags); ok {
		result.Valid = false
		result.Error = fatal.Error()
		result.Message = "Script has syntax errors"
		return result
	}
	result.Message = "Script is valid"
	return result
}

// ValidateFile reads the given file path and validates its contents.
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ValidateSource(string(data)), nil
}

// contextLine returns the source line at the given 1-based line number, or ""
// if out of range.
func contextLine(lines []string, line int) string {
	if line > 0 && line <= len(lines) {
		return strings.TrimRight(lines[line-1], "\r")
	}
	return ""
}
