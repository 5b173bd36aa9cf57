package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/shelf/pkg/declare"
	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/include"
	"github.com/matzehuels/shelf/pkg/observability"
	"github.com/matzehuels/shelf/pkg/resolve"
)

// Runner prepares scripts against one resolver.
//
// The Runner holds no per-script state, so one Runner can serve any number
// of Prepare calls in sequence.
type Runner struct {
	Resolver *resolve.Resolver
	Logger   *log.Logger
}

// NewRunner creates a runner. If logger is nil, log.Default() is used.
func NewRunner(resolver *resolve.Resolver, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Resolver: resolver, Logger: logger}
}

// Prepare runs parse → resolve → table for one script.
func (r *Runner) Prepare(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if r.Resolver == nil {
		return nil, errs.New(errs.ErrCodeInternal, "pipeline runner has no resolver")
	}

	result := &Result{}

	// Stage 1: Parse
	parseStart := time.Now()
	sites, err := r.parse(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	result.Sites = sites
	result.Stats.ParseTime = time.Since(parseStart)

	r.Logger.Debug("parsed declarations",
		"script", opts.Script,
		"includes", len(sites),
		"duration", result.Stats.ParseTime)

	// Stage 2: Resolve
	resolveStart := time.Now()
	deps, err := r.resolve(ctx, opts, sites)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	result.Dependencies = deps
	result.Stats.ResolveTime = time.Since(resolveStart)
	for _, d := range deps {
		if d.Cached {
			result.Stats.CacheHits++
		} else {
			result.Stats.Installs++
		}
	}

	if len(deps) > 0 {
		r.Logger.Info("resolved includes",
			"script", opts.Script,
			"packages", len(deps),
			"cached", result.Stats.CacheHits,
			"installed", result.Stats.Installs,
			"duration", result.Stats.ResolveTime)
	}

	// Stage 3: Table
	table, err := include.Build(deps)
	if err != nil {
		return nil, err
	}
	table.WithFile(opts.Script)
	if err := table.Check(sites); err != nil {
		return nil, err
	}
	result.Table = table

	return result, nil
}

func (r *Runner) parse(ctx context.Context, opts Options) (sites []declare.Site, err error) {
	hooks := observability.Pipeline()
	hooks.OnParseStart(ctx, opts.Script)
	start := time.Now()
	defer func() {
		hooks.OnParseComplete(ctx, opts.Script, len(sites), time.Since(start), err)
	}()

	if opts.Source != nil {
		return declare.Parse(opts.Script, string(opts.Source), opts.parseOptions()...)
	}
	return declare.ParseFile(opts.Script, opts.parseOptions()...)
}

func (r *Runner) resolve(ctx context.Context, opts Options, sites []declare.Site) (deps []resolve.Dependency, err error) {
	hooks := observability.Pipeline()
	hooks.OnResolveStart(ctx, len(sites))
	start := time.Now()
	defer func() {
		hooks.OnResolveComplete(ctx, len(deps), time.Since(start), err)
	}()

	deps, err = r.Resolver.Resolve(ctx, sites)
	var declErr *declare.DeclarationError
	if errors.As(err, &declErr) && declErr.File == "" {
		declErr.File = opts.Script
	}
	return deps, err
}
