package cli

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/shelf/pkg/cache"
	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/httputil"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheListCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every installed package and cached registry response",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := c.newStore()
			if _, err := os.Stat(store.Root()); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			if !yes {
				ok, err := confirm("Delete the package cache?", store.Root())
				if err != nil {
					return err
				}
				if !ok {
					printInfo("Cache left untouched")
					return nil
				}
			}

			slots, err := store.Clear()
			if err != nil {
				return err
			}
			responses := 0
			if hc, err := httputil.NewCache(c.Config.HTTPCacheDir, c.Config.HTTPCacheTTL); err == nil {
				if responses, err = hc.Clear(); err != nil {
					c.Logger.Warn("could not clear registry responses", "dir", hc.Dir(), "err", err)
				}
			}

			printSuccess("Removed %d packages and %d registry responses", slots, responses)
			printDetail("Directory: %s", store.Root())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

// confirm asks question on the terminal. Without a terminal there is nobody
// to ask, so it fails instead of guessing.
func confirm(question, detail string) (bool, error) {
	if !isTerminal(os.Stdin) {
		return false, errs.New(errs.ErrCodeInvalidInput, "refusing to clear the cache without --yes when stdin is not a terminal")
	}
	final, err := tea.NewProgram(NewConfirmModel(question, detail)).Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return final.(ConfirmModel).Confirmed, nil
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), c.Config.CacheDir)
			return err
		},
	}
}

// cacheListCommand creates the "cache list" subcommand.
func (c *CLI) cacheListCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list [package]",
		Short: "List installed packages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slots, err := listSlots(c.newStore(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if slots == nil {
					slots = []cache.Slot{}
				}
				return writeJSON(out, slots)
			}
			if len(slots) == 0 {
				_, err := fmt.Fprintln(out, StyleDim.Render("no packages installed"))
				return err
			}
			_, err = fmt.Fprintln(out, slotTable(slots, time.Now()))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")

	return cmd
}

// listSlots returns the slots of the named package, or of every package.
func listSlots(store *cache.Store, args []string) ([]cache.Slot, error) {
	names := args
	if len(names) == 0 {
		var err error
		if names, err = store.Names(); err != nil {
			return nil, err
		}
	}

	var slots []cache.Slot
	for _, name := range names {
		s, err := store.List(name)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s...)
	}
	return slots, nil
}
