// Package runner executes a prepared script under Node.js with the
// include() global bound to its include table.
package runner

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"

	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/include"
)

// Environment variables read by the preload script.
const (
	EnvTable  = "SHELF_INCLUDE_TABLE"
	EnvScript = "SHELF_SCRIPT"
)

// DefaultBinary is the node executable looked up on PATH.
const DefaultBinary = "node"

//go:embed preload.js
var preload []byte

// Preload returns the script node loads with --require before the user's
// script.
func Preload() []byte { return preload }

// ExitError reports a script that ran and exited with a non-zero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("script exited with status %d", e.Code)
}

// Node runs scripts with the node binary.
type Node struct {
	Binary string   // node executable, DefaultBinary when empty
	Env    []string // extra KEY=VALUE pairs for the script
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *log.Logger
}

// Run executes script with args. A non-zero exit is returned as *ExitError.
func (n *Node) Run(ctx context.Context, script string, args []string, table *include.Table) error {
	tableJSON, err := json.Marshal(table)
	if err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "encode include table")
	}

	preloadPath, cleanup, err := writePreload()
	if err != nil {
		return errs.Wrap(errs.ErrCodeExecute, err, "write preload script")
	}
	defer cleanup()

	bin := n.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	argv := append([]string{"--require", preloadPath, script}, args...)
	if n.Logger != nil {
		n.Logger.Debug("running script", "binary", bin, "script", script, "includes", table.Len())
	}

	cmd := exec.CommandContext(ctx, bin, argv...)
	cmd.Env = append(os.Environ(), EnvTable+"="+string(tableJSON), EnvScript+"="+script)
	cmd.Env = append(cmd.Env, n.Env...)
	cmd.Stdin = orDefault(n.Stdin, os.Stdin)
	cmd.Stdout = orDefaultW(n.Stdout, os.Stdout)
	cmd.Stderr = orDefaultW(n.Stderr, os.Stderr)

	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.As(err, &exitErr):
		return &ExitError{Code: exitErr.ExitCode()}
	default:
		return errs.Wrap(errs.ErrCodeExecute, err, "run %s", bin)
	}
}

func writePreload() (string, func(), error) {
	f, err := os.CreateTemp("", "shelf-preload-*.js")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := f.Write(preload); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return f.Name(), cleanup, nil
}

func orDefault(r io.Reader, def io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return def
}

func orDefaultW(w io.Writer, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}
