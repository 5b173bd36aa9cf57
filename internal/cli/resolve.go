package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/shelf/pkg/pipeline"
)

// resolveOpts holds the command-line flags for the resolve command.
type resolveOpts struct {
	json   bool
	output string
}

// resolveCommand creates the resolve command. It installs everything a
// script declares, like run, but prints the include table instead of
// executing the script.
func (c *CLI) resolveCommand() *cobra.Command {
	var opts resolveOpts

	cmd := &cobra.Command{
		Use:   "resolve <script>",
		Short: "Install a script's packages and print its include table",
		Long: `Resolve every include() declaration of a script against the package cache,
installing missing versions, and print the resulting include table.

Examples:
  shelf resolve hello.js
  shelf resolve --json hello.js`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResolve(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "output JSON")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")

	return cmd
}

func (c *CLI) runResolve(cmd *cobra.Command, opts resolveOpts, script string) error {
	result, err := c.prepare(cmd.Context(), script)
	if err != nil {
		return err
	}

	out, err := openOutput(cmd.OutOrStdout(), opts.output)
	if err != nil {
		return err
	}
	defer out.Close()

	if opts.json {
		return writeJSON(out, result)
	}
	if len(result.Dependencies) == 0 {
		_, err := fmt.Fprintln(out, StyleDim.Render("no include() declarations"))
		return err
	}
	if _, err := fmt.Fprintln(out, dependencyTable(result.Dependencies)); err != nil {
		return err
	}
	printStats(result.Stats)
	return nil
}

// prepare runs the pipeline for script behind a spinner.
func (c *CLI) prepare(ctx context.Context, script string) (*pipeline.Result, error) {
	logger := loggerFromContext(ctx)
	logger.Debug("preparing script", "script", script, "cache", c.Config.CacheDir)

	spin := newSpinnerOn(ctx, os.Stderr, isTerminal(os.Stderr) && !c.verbose, "Resolving "+script)
	spin.Start()
	prog := newProgress(logger)
	result, err := c.newRunner().Prepare(ctx, pipeline.Options{
		Script:         script,
		RequireVersion: c.Config.RequireVersion,
	})
	spin.Stop()
	if err != nil {
		return nil, err
	}

	if result.Stats.Installs > 0 {
		prog.done("Installed packages", "installed", result.Stats.Installs, "total", len(result.Dependencies))
	}
	return result, nil
}
