package cli

import (
	"github.com/spf13/cobra"
)

// runCommand creates the run command: prepare a script and execute it under
// node with its include table.
func (c *CLI) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script> [args...]",
		Short: "Run a script with its declared packages",
		Long: `Run a JavaScript file under node. Packages the script declares with
include(name, version) are resolved and installed first; include() then
returns the installed package.

Arguments after the script are passed to it unchanged, and shelf exits
with the script's exit status.

Examples:
  shelf run hello.js
  shelf run fetch.js --limit 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, scriptArgs := args[0], args[1:]

			result, err := c.prepare(cmd.Context(), script)
			if err != nil {
				return err
			}
			return c.newNode().Run(cmd.Context(), script, scriptArgs, result.Table)
		},
	}

	// Flags after the script belong to the script.
	cmd.Flags().SetInterspersed(false)

	return cmd
}
