// Package integrations provides HTTP clients for package registry APIs.
//
// # Overview
//
// shelf talks to one registry, npm, to answer a single question: which
// concrete version does a dist-tag such as "latest" point to right now.
// The client for it lives in [npm]; this package holds the shared plumbing.
//
// # Client Pattern
//
// Registry clients embed [Client] and follow the same shape:
//
//	client := npm.NewClient(cache, "")                  // default registry
//	info, err := client.FetchPackage(ctx, "lodash", false) // false = use cache
//
// [Client] handles:
//   - GET requests with default and per-request headers
//   - retry with exponential backoff on transient failures
//   - response caching through [httputil.Cache]
//   - request/response events for [observability.HTTP] hooks
//
// Status codes map to [ErrNotFound] (404) and [ErrNetwork] (everything
// else); 429 and 5xx responses are retried.
//
// [npm]: github.com/matzehuels/shelf/pkg/integrations/npm
// [httputil.Cache]: github.com/matzehuels/shelf/pkg/httputil.Cache
// [observability.HTTP]: github.com/matzehuels/shelf/pkg/observability.HTTP
package integrations
