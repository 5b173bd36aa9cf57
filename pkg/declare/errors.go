package declare

import (
	"errors"
	"fmt"
	"strings"

	errs "github.com/matzehuels/shelf/pkg/errors"
)

// Messages used in declaration errors.
const (
	msgArity           = "Call to " + Identifier + "() requires at least a name string, and optionally a version string, argument"
	msgNameLiteral     = "Call to " + Identifier + "() requires that the name argument is a literal string"
	msgNameType        = "npm module name argument must be a string"
	msgNameEmpty       = "npm module name argument must not be empty"
	msgVersionLiteral  = "Call to " + Identifier + "() requires that the version argument, if given, is a literal string"
	msgVersionType     = "npm module version argument must be a string"
	msgVersionRequired = "Call to " + Identifier + "() requires a version argument"
)

// SyntaxError reports source text that is not valid JavaScript.
type SyntaxError struct {
	File   string
	Line   int
	Column int
	Reason string

	// Incomplete is set when parsing ran out of input, i.e. more text
	// could still turn the source into a valid program.
	Incomplete bool
}

func (e *SyntaxError) Error() string {
	return joinParts(e.File, linePart(e.Line), "", e.Reason)
}

// Code implements errors.Coder.
func (e *SyntaxError) Code() errs.Code { return errs.ErrCodeInvalidSyntax }

// DeclarationError reports a syntactically valid include() call that breaks
// the declaration rules (arity, non-literal or non-string arguments).
type DeclarationError struct {
	File     string
	Line     int
	Column   int
	Variable string
	Reason   string
}

func (e *DeclarationError) Error() string {
	including := ""
	if e.Variable != "" {
		including = fmt.Sprintf("Error including %q", e.Variable)
	}
	return joinParts(e.File, linePart(e.Line), including, e.Reason)
}

// Code implements errors.Coder.
func (e *DeclarationError) Code() errs.Code { return errs.ErrCodeInvalidDeclaration }

// IsSyntax reports whether err is (or wraps) a *SyntaxError.
func IsSyntax(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

// IsIncomplete reports whether err is a *SyntaxError caused by premature end
// of input.
func IsIncomplete(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se) && se.Incomplete
}

// IsDeclaration reports whether err is (or wraps) a *DeclarationError.
func IsDeclaration(err error) bool {
	var de *DeclarationError
	return errors.As(err, &de)
}

func linePart(line int) string {
	if line <= 0 {
		return ""
	}
	return fmt.Sprintf("Line %d", line)
}

func joinParts(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}
