package cli

import (
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/shelf/internal/config"
	"github.com/matzehuels/shelf/pkg/buildinfo"
	"github.com/matzehuels/shelf/pkg/cache"
	"github.com/matzehuels/shelf/pkg/httputil"
	"github.com/matzehuels/shelf/pkg/install"
	"github.com/matzehuels/shelf/pkg/integrations/npm"
	"github.com/matzehuels/shelf/pkg/pipeline"
	"github.com/matzehuels/shelf/pkg/resolve"
	"github.com/matzehuels/shelf/pkg/runner"
)

// appName is the application name used for directories and display.
const appName = "shelf"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config config.Config

	// global flags
	configPath     string
	cacheDir       string
	verbose        bool
	requireVersion bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Shelf runs scripts that declare their npm packages inline",
		Long: `Shelf runs JavaScript files that declare their dependencies inline with
include(name, version). Each declared package is installed once into a
versioned cache and shared by every script that asks for it.`,
		Version:           buildinfo.Resolved(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	flags.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/shelf/config.toml)")
	flags.StringVar(&c.cacheDir, "cache-dir", "", "package cache directory")
	flags.BoolVar(&c.requireVersion, "require-version", false, "reject include() calls without a version")

	root.AddCommand(c.runCommand())
	root.AddCommand(c.parseCommand())
	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup loads configuration and applies global flags on top of it.
func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.cacheDir != "" {
		cfg.CacheDir = c.cacheDir
	}
	if cmd.Flags().Changed("require-version") {
		cfg.RequireVersion = c.requireVersion
	}
	c.Config = cfg

	level := cfg.LogLevel
	if c.verbose {
		level = LogDebug
	}
	c.SetLogLevel(level)
	cmd.SetContext(withLogger(cmd.Context(), c.Logger))

	c.Logger.Debug("configuration loaded", "cache", cfg.CacheDir, "registry", cfg.Registry, "npm", cfg.NPM)
	return nil
}

// =============================================================================
// Component Factories
// =============================================================================

func (c *CLI) newStore() *cache.Store {
	return cache.New(c.Config.CacheDir)
}

// newRegistry creates an npm registry client. The response cache is
// optional; when it cannot be created the client talks to the registry
// directly.
func (c *CLI) newRegistry() *npm.Client {
	hc, err := httputil.NewCache(c.Config.HTTPCacheDir, c.Config.HTTPCacheTTL)
	if err != nil {
		c.Logger.Warn("registry response cache disabled", "err", err)
		hc = nil
	} else {
		c.Logger.Debug("registry response cache", "dir", hc.Dir(), "ttl", hc.TTL())
	}
	client := npm.NewClient(hc, c.Config.Registry)
	if c.Config.HTTPTimeout > 0 {
		client.SetHTTPClient(&http.Client{Timeout: c.Config.HTTPTimeout})
	}
	return client
}

func (c *CLI) newInstaller() *install.NPM {
	return &install.NPM{
		Binary:   c.Config.NPM,
		Registry: c.Config.Registry,
		Args:     c.Config.NPMArgs,
		Logger:   c.Logger,
	}
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner() *pipeline.Runner {
	res := resolve.New(c.newStore(), c.newInstaller(), c.newRegistry(),
		resolve.WithLogger(c.Logger),
		resolve.WithRequireVersion(c.Config.RequireVersion),
	)
	return pipeline.NewRunner(res, c.Logger)
}

func (c *CLI) newNode() *runner.Node {
	return &runner.Node{
		Binary: c.Config.Node,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: c.Logger,
	}
}
