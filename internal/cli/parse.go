package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/shelf/pkg/declare"
)

// parseOpts holds the command-line flags for the parse command.
type parseOpts struct {
	json   bool   // emit JSON instead of a table
	output string // output file path (stdout if empty)
}

// parseCommand creates the parse command. It reports what a script declares
// without touching the cache or the network.
func (c *CLI) parseCommand() *cobra.Command {
	var opts parseOpts

	cmd := &cobra.Command{
		Use:   "parse <script>",
		Short: "List the include() declarations of a script",
		Long: `Parse a script and list its include() declarations in source order.

The script is never executed. Syntax errors and malformed include() calls
are reported with their line numbers.

Examples:
  shelf parse hello.js
  shelf parse --json hello.js | jq '.[].name'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runParse(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "output JSON")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")

	return cmd
}

func (c *CLI) runParse(cmd *cobra.Command, opts parseOpts, script string) error {
	sites, err := declare.ParseFile(script, declare.WithRequireVersion(c.Config.RequireVersion))
	if err != nil {
		return err
	}
	c.Logger.Debug("parsed script", "script", script, "includes", len(sites))

	out, err := openOutput(cmd.OutOrStdout(), opts.output)
	if err != nil {
		return err
	}
	defer out.Close()

	if opts.json {
		if sites == nil {
			sites = []declare.Site{}
		}
		return writeJSON(out, sites)
	}
	if len(sites) == 0 {
		_, err := fmt.Fprintln(out, StyleDim.Render("no include() declarations"))
		return err
	}
	_, err = fmt.Fprintln(out, sitesTable(sites))
	return err
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// nopCloser wraps an io.Writer with a no-op Close method.
type nopCloser struct{ io.Writer }

// Close implements io.Closer with a no-op.
func (nopCloser) Close() error { return nil }

// openOutput returns a WriteCloser for the given path, or def when path is
// empty. An existing file at path is overwritten.
func openOutput(def io.Writer, path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{def}, nil
	}
	return os.Create(path)
}
