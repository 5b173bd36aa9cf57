// Package resolve maps include() declarations to installed package
// directories.
//
// For each distinct declaration the [Resolver] picks a concrete version:
//
//   - "latest" (or no version) asks the registry which version the tag
//     points to, then looks for exactly that slot in the cache
//   - a semver range picks the highest cached version satisfying it. When
//     none does, the highest published version satisfying it is installed
//   - any other string is treated as a dist-tag ("next", "beta") and
//     resolved through the registry like "latest"
//
// Misses are installed into a per-run staging directory and moved into the
// cache with [cache.Store.Commit]. Resolution is sequential and stops at
// the first failure; slots committed before it stay in the cache.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/shelf/pkg/cache"
	"github.com/matzehuels/shelf/pkg/declare"
	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/observability"
)

// Installer installs one package into a staging directory.
type Installer interface {
	// Install installs name@spec under stagingDir and returns the package
	// directory.
	Install(ctx context.Context, stagingDir, name, spec string) (string, error)

	// InstalledVersion returns the concrete version installed in dir.
	InstalledVersion(dir string) (string, error)
}

// Registry answers dist-tag and version list queries.
type Registry interface {
	LatestVersion(ctx context.Context, name string) (string, error)
	DistTag(ctx context.Context, name, tag string) (string, error)

	// Versions lists the published versions of name. Without refresh the
	// answer may come from a response cache.
	Versions(ctx context.Context, name string, refresh bool) ([]string, error)
}

// Dependency is a declaration resolved to an installed slot.
type Dependency struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"` // normalized, "latest" when absent
	Version    string `json:"version"`    // concrete installed version
	Path       string `json:"path"`       // slot directory
	Cached     bool   `json:"cached"`     // true when no install was needed
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for resolution progress.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRequireVersion rejects declarations without a version.
func WithRequireVersion(require bool) Option {
	return func(r *Resolver) { r.requireVersion = require }
}

// Resolver resolves declarations against a cache, installing misses.
type Resolver struct {
	store          *cache.Store
	installer      Installer
	registry       Registry
	logger         *log.Logger
	requireVersion bool
}

// New creates a Resolver.
func New(store *cache.Store, inst Installer, reg Registry, opts ...Option) *Resolver {
	r := &Resolver{
		store:     store,
		installer: inst,
		registry:  reg,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the cache the resolver commits into.
func (r *Resolver) Store() *cache.Store { return r.store }

type kind int

const (
	kindLatest kind = iota
	kindRange
	kindTag
)

// request is one distinct (name, constraint) pair to resolve.
type request struct {
	name       string
	constraint string
	kind       kind
	rng        *semver.Constraints
	site       declare.Site
}

// Resolve returns one Dependency per distinct declaration, in order of
// first appearance. Every declaration is validated before anything touches
// the network or the cache.
func (r *Resolver) Resolve(ctx context.Context, sites []declare.Site) ([]Dependency, error) {
	reqs, err := r.plan(sites)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	runID := uuid.NewString()
	defer func() {
		if err := r.store.RemoveStaging(runID); err != nil {
			r.logger.Warn("could not remove staging directory", "run", runID, "err", err)
		}
	}()

	deps := make([]Dependency, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dep, err := r.resolve(ctx, runID, req)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// plan validates sites and collapses duplicates.
func (r *Resolver) plan(sites []declare.Site) ([]request, error) {
	seen := make(map[string]request, len(sites))
	var reqs []request

	for _, s := range sites {
		if r.requireVersion && (!s.HasVersion || s.Version == "") {
			return nil, siteError(s, "Call to include() requires a version argument")
		}
		if err := errs.ValidateNpmPackageName(s.Name); err != nil {
			return nil, siteError(s, errs.UserMessage(err))
		}

		c := s.Constraint()
		if prev, ok := seen[s.Name]; ok {
			if prev.constraint == c {
				continue
			}
			return nil, siteError(s, fmt.Sprintf(
				"conflicting versions for %q: %q (line %d) and %q (line %d)",
				s.Name, prev.constraint, prev.site.Line, c, s.Line))
		}

		req := request{name: s.Name, constraint: c, site: s}
		switch rng, err := semver.NewConstraint(c); {
		case c == declare.Latest:
			req.kind = kindLatest
		case err == nil:
			req.kind, req.rng = kindRange, rng
		case errs.ValidateVersionName(c) == nil:
			req.kind = kindTag
		default:
			return nil, siteError(s, fmt.Sprintf("invalid version constraint %q", c))
		}

		seen[s.Name] = req
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func siteError(s declare.Site, reason string) error {
	return &declare.DeclarationError{
		Line:     s.Line,
		Column:   s.Column,
		Variable: s.Variable,
		Reason:   reason,
	}
}

func (r *Resolver) resolve(ctx context.Context, runID string, req request) (Dependency, error) {
	switch req.kind {
	case kindRange:
		return r.resolveRange(ctx, runID, req)
	case kindLatest:
		v, err := r.registry.LatestVersion(ctx, req.name)
		if err != nil {
			return Dependency{}, registryError(req, err)
		}
		return r.resolveExact(ctx, runID, req, v)
	default:
		v, err := r.registry.DistTag(ctx, req.name, req.constraint)
		if err != nil {
			return Dependency{}, registryError(req, err)
		}
		return r.resolveExact(ctx, runID, req, v)
	}
}

func (r *Resolver) resolveRange(ctx context.Context, runID string, req request) (Dependency, error) {
	slots, err := r.store.List(req.name)
	if err != nil {
		return Dependency{}, err
	}

	var best *semver.Version
	var bestSlot cache.Slot
	for _, s := range slots {
		v, err := semver.NewVersion(s.Version)
		if err != nil || !req.rng.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestSlot = v, s
		}
	}
	if best != nil {
		return r.hit(ctx, req, bestSlot), nil
	}

	// An exact version needs no registry round trip.
	if v, err := semver.StrictNewVersion(req.constraint); err == nil {
		return r.install(ctx, runID, req, v.Original())
	}
	version, err := r.published(ctx, req)
	if err != nil {
		return Dependency{}, err
	}
	return r.install(ctx, runID, req, version)
}

// published returns the highest published version satisfying req. A cached
// version list that has nothing matching is refreshed once, since the
// version may have been published after the list was cached.
func (r *Resolver) published(ctx context.Context, req request) (string, error) {
	for _, refresh := range []bool{false, true} {
		versions, err := r.registry.Versions(ctx, req.name, refresh)
		if err != nil {
			return "", registryError(req, err)
		}
		if v := maxSatisfying(versions, req.rng); v != "" {
			return v, nil
		}
	}
	return "", errs.New(errs.ErrCodeInvalidVersion, "no published version of %s satisfies %q", req.name, req.constraint)
}

func maxSatisfying(versions []string, rng *semver.Constraints) string {
	var best *semver.Version
	for _, raw := range versions {
		v, err := semver.NewVersion(raw)
		if err != nil || !rng.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return ""
	}
	return best.Original()
}

func (r *Resolver) resolveExact(ctx context.Context, runID string, req request, version string) (Dependency, error) {
	slot, ok, err := r.store.Lookup(req.name, version)
	if err != nil {
		return Dependency{}, err
	}
	if ok {
		return r.hit(ctx, req, slot), nil
	}
	return r.install(ctx, runID, req, version)
}

func (r *Resolver) hit(ctx context.Context, req request, slot cache.Slot) Dependency {
	observability.Cache().OnCacheHit(ctx, req.name, slot.Version)
	r.logger.Debug("cache hit", "name", req.name, "constraint", req.constraint, "version", slot.Version)
	return Dependency{
		Name:       req.name,
		Constraint: req.constraint,
		Version:    slot.Version,
		Path:       slot.Path,
		Cached:     true,
	}
}

func (r *Resolver) install(ctx context.Context, runID string, req request, spec string) (Dependency, error) {
	observability.Cache().OnCacheMiss(ctx, req.name, req.constraint)
	r.logger.Info("installing", "name", req.name, "spec", spec)

	dir, err := r.installer.Install(ctx, r.store.Staging(runID), req.name, spec)
	if err != nil {
		return Dependency{}, installError(req, spec, err)
	}
	version, err := r.installer.InstalledVersion(dir)
	if err != nil {
		return Dependency{}, installError(req, spec, err)
	}

	slot, err := r.store.Commit(ctx, req.name, version, dir)
	if err != nil {
		return Dependency{}, err
	}
	r.logger.Debug("committed", "name", req.name, "version", version, "path", slot.Path)

	return Dependency{
		Name:       req.name,
		Constraint: req.constraint,
		Version:    slot.Version,
		Path:       slot.Path,
	}, nil
}

func installError(req request, spec string, err error) error {
	if errs.GetCode(err) != "" || ctxErr(err) {
		return err
	}
	return errs.Wrap(errs.ErrCodeInstall, err, "install %s@%s", req.name, spec)
}

func registryError(req request, err error) error {
	if errs.GetCode(err) != "" || ctxErr(err) {
		return err
	}
	return errs.Wrap(errs.ErrCodeNetwork, err, "resolve %s@%s", req.name, req.constraint)
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
