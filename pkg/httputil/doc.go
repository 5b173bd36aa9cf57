// Package httputil provides the plumbing shared by registry clients.
//
// # Caching
//
// [Cache] keeps registry metadata on disk (~/.cache/shelf/http by default)
// so that listing a package's published versions does not hit the network
// on every run. Keys are namespaced per registry:
//
//	cache, err := httputil.NewCache("", 24*time.Hour)
//	npm := cache.Namespace("npm:")
//	ok, err := npm.Get("lodash", &info)
//
// Queries whose answer can move at any time, such as the "latest" dist-tag
// used to resolve undeclared versions, bypass the cache on read and only
// refresh it.
//
// # Retry
//
// [Retry] re-runs an operation on transient failures with exponential
// backoff. Callers mark what is transient with [Retryable]:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    ...
//	})
//
// Only idempotent GET requests are retried. Installs are never retried.
package httputil
