package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/runner"
)

// Exit codes returned by Execute besides a script's own status.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitInterrupt = 130 // shell convention for SIGINT
)

// Execute runs the shelf CLI with os.Args and returns the process exit code.
//
// A script run by "shelf run" exits with its own status. Errors the script
// author can fix (bad syntax, a malformed include() call) are printed as a
// single line; everything else prints the full error chain.
//
//	func main() {
//	    ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	    defer cancel()
//	    os.Exit(cli.Execute(ctx))
//	}
func Execute(ctx context.Context) int {
	c := New(os.Stderr, LogInfo)
	err := c.RootCommand().ExecuteContext(ctx)
	return report(os.Stderr, c, err)
}

// report prints err to w and maps it to an exit code.
func report(w io.Writer, c *CLI, err error) int {
	code := exitCode(err)
	var exitErr *runner.ExitError
	if code == ExitOK || code == ExitInterrupt || errors.As(err, &exitErr) {
		return code
	}

	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+formatError(err))
	if c != nil && !errs.IsUserError(err) {
		c.Logger.Debug("command failed", "code", errs.GetCode(err))
	}
	return code
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	var exitErr *runner.ExitError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupt
	case errors.As(err, &exitErr) && exitErr.Code > 0:
		return exitErr.Code
	default:
		return ExitError
	}
}

// formatError renders err for the terminal. User errors drop the stage
// prefix and error code so only the message remains.
func formatError(err error) string {
	if errs.IsUserError(err) {
		return errs.UserMessage(err)
	}
	return err.Error()
}
