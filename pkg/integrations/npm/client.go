package npm

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"

	"github.com/matzehuels/shelf/pkg/buildinfo"
	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/httputil"
	"github.com/matzehuels/shelf/pkg/integrations"
)

// DefaultRegistry is the public npm registry.
const DefaultRegistry = "https://registry.npmjs.org"

// abbreviatedMetadata asks the registry for the install-time document,
// which carries dist-tags and versions without readmes.
const abbreviatedMetadata = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"

// PackageInfo is the subset of registry metadata shelf needs.
type PackageInfo struct {
	Name     string            `json:"name"`
	Latest   string            `json:"latest"`
	DistTags map[string]string `json:"dist_tags"`
	Versions []string          `json:"versions"`
}

// Client queries an npm-compatible registry.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates an npm registry client.
//
// Parameters:
//   - cache: response cache shared with other clients; entries are stored
//     under its "npm:" namespace. Use nil to disable caching.
//   - registry: registry base URL with or without a trailing slash. Use ""
//     for [DefaultRegistry].
//
// Requests ask for the abbreviated install document and carry the shelf
// User-Agent.
func NewClient(cache *httputil.Cache, registry string) *Client {
	if registry == "" {
		registry = DefaultRegistry
	}
	var ns *httputil.Cache
	if cache != nil {
		ns = cache.Namespace("npm:")
	}
	return &Client{
		Client:  integrations.NewClient(ns, map[string]string{
			"Accept":     abbreviatedMetadata,
			"User-Agent": buildinfo.UserAgent(),
		}),
		baseURL: strings.TrimRight(registry, "/"),
	}
}

// Registry returns the registry base URL.
func (c *Client) Registry() string { return c.baseURL }

// FetchPackage retrieves the registry metadata of pkg.
//
// If refresh is true, the response cache is bypassed and the fresh document
// replaces the cached one. If refresh is false, a cached document is used
// while it is younger than the cache TTL.
//
// Returns:
//   - PackageInfo with dist-tags and every published version on success
//   - an INVALID_PACKAGE error before any request if pkg is not an npm name
//   - a PACKAGE_NOT_FOUND error if the registry answers 404
//   - a NETWORK_ERROR error for other HTTP or decoding failures
//
// The returned PackageInfo pointer is never nil if err is nil.
func (c *Client) FetchPackage(ctx context.Context, pkg string, refresh bool) (*PackageInfo, error) {
	pkg = strings.TrimSpace(pkg)
	if err := errs.ValidateNpmPackageName(pkg); err != nil {
		return nil, err
	}

	var info PackageInfo
	err := c.Cached(ctx, c.baseURL+"|"+pkg, refresh, &info, func() error {
		return c.fetch(ctx, pkg, &info)
	})
	if err != nil {
		return nil, mapError(pkg, err)
	}
	return &info, nil
}

// LatestVersion returns the version the "latest" dist-tag points to. The
// tag moves, so the registry is always asked.
func (c *Client) LatestVersion(ctx context.Context, pkg string) (string, error) {
	info, err := c.FetchPackage(ctx, pkg, true)
	if err != nil {
		return "", err
	}
	if info.Latest == "" {
		return "", errs.New(errs.ErrCodeInvalidVersion, "npm package %s has no %q tag", pkg, "latest")
	}
	return info.Latest, nil
}

// Versions returns every published version of pkg in lexical order.
// Without refresh the list may come from the response cache, so a version
// published within the cache TTL can be missing.
func (c *Client) Versions(ctx context.Context, pkg string, refresh bool) ([]string, error) {
	info, err := c.FetchPackage(ctx, pkg, refresh)
	if err != nil {
		return nil, err
	}
	return info.Versions, nil
}

// DistTag returns the version tag points to, always asking the registry.
func (c *Client) DistTag(ctx context.Context, pkg, tag string) (string, error) {
	info, err := c.FetchPackage(ctx, pkg, true)
	if err != nil {
		return "", err
	}
	v, ok := info.DistTags[tag]
	if !ok || v == "" {
		return "", errs.New(errs.ErrCodeInvalidVersion, "npm package %s has no %q tag", pkg, tag)
	}
	return v, nil
}

func (c *Client) fetch(ctx context.Context, pkg string, info *PackageInfo) error {
	var data registryResponse
	if err := c.Get(ctx, c.baseURL+"/"+EscapeName(pkg), &data); err != nil {
		return err
	}

	versions := make([]string, 0, len(data.Versions))
	for v := range data.Versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	*info = PackageInfo{
		Name:     data.Name,
		Latest:   data.DistTags["latest"],
		DistTags: data.DistTags,
		Versions: versions,
	}
	return nil
}

// EscapeName encodes a package name for a registry URL path. Scoped names
// keep their "@" and escape the slash: "@types/node" -> "@types%2fnode".
func EscapeName(pkg string) string {
	if scope, name, ok := strings.Cut(pkg, "/"); ok && strings.HasPrefix(scope, "@") {
		return "@" + url.PathEscape(scope[1:]) + "%2f" + url.PathEscape(name)
	}
	return url.PathEscape(pkg)
}

func mapError(pkg string, err error) error {
	switch {
	case errors.Is(err, integrations.ErrNotFound):
		return errs.Wrap(errs.ErrCodePackageNotFound, err, "npm package %s", pkg)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return errs.Wrap(errs.ErrCodeNetwork, err, "query registry for %s", pkg)
	}
}

type registryResponse struct {
	Name     string              `json:"name"`
	DistTags map[string]string   `json:"dist-tags"`
	Versions map[string]struct{} `json:"versions"`
}
