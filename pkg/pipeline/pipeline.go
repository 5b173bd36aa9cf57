// Package pipeline prepares a script for execution.
//
// Preparation runs three stages in order:
//
//  1. Parse: find every include(name[, version]) declaration in the source
//  2. Resolve: map each declaration to an installed cache slot, installing
//     misses through a staging directory
//  3. Table: build the closed include table the script runs against
//
// A failed stage stops the pipeline. Errors carry the stage name as a prefix
// ("parse: ...", "resolve: ...") and keep their error codes, so callers can
// still classify them with errors.GetCode.
//
// # Usage
//
//	runner := pipeline.NewRunner(resolver, logger)
//	result, err := runner.Prepare(ctx, pipeline.Options{Script: "hello.js"})
//	if err != nil {
//	    return err
//	}
//	err = node.Run(ctx, "hello.js", args, result.Table)
package pipeline

import (
	"time"

	"github.com/matzehuels/shelf/pkg/declare"
	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/include"
	"github.com/matzehuels/shelf/pkg/resolve"
)

// Options configures a single Prepare call.
type Options struct {
	// Script is the path of the script. It labels errors and, when Source
	// is nil, is read from disk.
	Script string

	// Source overrides reading Script from disk.
	Source []byte

	// RequireVersion rejects include(name) without a version argument.
	RequireVersion bool
}

// Validate checks required fields.
func (o Options) Validate() error {
	if o.Script == "" && o.Source == nil {
		return errs.New(errs.ErrCodeInvalidInput, "script path or source is required")
	}
	return nil
}

func (o Options) parseOptions() []declare.Option {
	return []declare.Option{declare.WithRequireVersion(o.RequireVersion)}
}

// Result holds everything produced by a successful Prepare.
type Result struct {
	Sites        []declare.Site       `json:"sites"`
	Dependencies []resolve.Dependency `json:"dependencies"`
	Table        *include.Table       `json:"table"`
	Stats        Stats                `json:"stats"`
}

// Stats holds timing and cache counters for a Prepare call.
type Stats struct {
	ParseTime   time.Duration `json:"parse_time"`
	ResolveTime time.Duration `json:"resolve_time"`
	CacheHits   int           `json:"cache_hits"`
	Installs    int           `json:"installs"`
}
