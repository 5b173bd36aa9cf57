package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/matzehuels/shelf/pkg/declare"
	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/runner"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"cancelled", fmt.Errorf("resolve: %w", context.Canceled), ExitInterrupt},
		{"script status", &runner.ExitError{Code: 42}, 42},
		{"killed script", &runner.ExitError{Code: -1}, ExitError},
		{"install failure", errs.New(errs.ErrCodeInstall, "npm install foo@1.0.0"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestFormatError(t *testing.T) {
	decl := fmt.Errorf("parse: %w", &declare.DeclarationError{
		File: "a.js", Line: 3, Variable: "x", Reason: "Call to include() requires a version argument",
	})
	if got, want := formatError(decl), `a.js; Line 3; Error including "x"; Call to include() requires a version argument`; got != want {
		t.Errorf("formatError(declaration) = %q, want %q", got, want)
	}

	notDeclared := errs.New(errs.ErrCodeNotDeclared, `include("foo@latest") was not declared in a.js`)
	if got := formatError(notDeclared); got != `include("foo@latest") was not declared in a.js` {
		t.Errorf("formatError(not declared) = %q", got)
	}

	cause := errs.Wrap(errs.ErrCodeInstall, fmt.Errorf("exit status 1"), "npm install foo@9")
	if got := formatError(fmt.Errorf("resolve: %w", cause)); got != "resolve: INSTALL_FAILED: npm install foo@9: exit status 1" {
		t.Errorf("formatError(install) = %q", got)
	}
}

func TestReport(t *testing.T) {
	c := New(io.Discard, LogInfo)
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantPrint bool
	}{
		{"success", nil, ExitOK, false},
		{"interrupt", context.Canceled, ExitInterrupt, false},
		{"script exit", &runner.ExitError{Code: 2}, 2, false},
		{"failure", errs.New(errs.ErrCodeCache, "relocate foo@1.0.0"), ExitError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := report(&buf, c, tt.err); got != tt.wantCode {
				t.Errorf("report() = %d, want %d", got, tt.wantCode)
			}
			if printed := buf.Len() > 0; printed != tt.wantPrint {
				t.Errorf("printed = %v (%q), want %v", printed, buf.String(), tt.wantPrint)
			}
			if tt.wantPrint && strings.Count(strings.TrimSpace(buf.String()), "\n") != 0 {
				t.Errorf("report printed more than one line: %q", buf.String())
			}
		})
	}
}
