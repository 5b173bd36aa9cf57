// Package npm provides an HTTP client for the npm registry API.
//
// # Overview
//
// The resolver needs the registry for two things: turning a dist-tag
// ("latest", "next", ...) into a concrete version before looking at the
// local cache, and listing published versions when no cached slot satisfies
// a semver range. Everything else (tarballs, dependency trees) is left to
// the npm CLI.
//
// # Usage
//
//	cache, _ := httputil.NewCache("", 24*time.Hour)
//	client := npm.NewClient(cache, "")
//
//	v, err := client.LatestVersion(ctx, "lodash")
//	versions, err := client.Versions(ctx, "@types/node", false)
//
// # Caching
//
// [Client.FetchPackage] caches documents under the "npm:" namespace of the
// given cache. [Client.Versions] reads through the cache unless asked to
// refresh. [Client.LatestVersion] and [Client.DistTag] always refresh,
// since tags move between runs.
//
// # Scoped packages
//
// Scoped names are requested as "@scope%2fname", the form the registry
// expects; see [EscapeName].
package npm
