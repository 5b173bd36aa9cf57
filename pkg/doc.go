// Package pkg provides the core libraries for shelf, a runner for scripts
// that declare their npm packages inline.
//
// # Overview
//
// A script names the packages it needs with calls like
//
//	const leftPad = include("left-pad", "^1.3.0");
//
// and shelf makes those calls work without a package.json or a
// node_modules directory next to the script. Every declared version is
// installed once into a shared cache and reused by every script that asks
// for it.
//
// # Architecture
//
// The data flow for one run:
//
//	script source
//	     ↓
//	[declare] find include() calls (the script is never evaluated)
//	     ↓
//	[resolve] pick a cached version or install one
//	     ↓          ↘
//	     ↓       [install] npm install into a staging directory
//	     ↓          ↓
//	     ↓       [cache] atomic rename into <root>/<name>/<version>
//	     ↓
//	[include] closed table: declaration key → package directory
//	     ↓
//	[runner] node --require preload script.js
//
// [pipeline] wires parse, resolve and table building together, and is what
// the CLI calls.
//
// # Main Packages
//
// [declare] - Static declaration parser. Reports every include() call with
// its name, version constraint, enclosing variable and source position, or a
// positioned syntax/declaration error.
//
// [cache] - Index over the package cache. A slot directory counts only once
// its completion marker is present, so concurrent runs never see a partial
// install.
//
// [resolve] - Version resolver. "latest" and dist-tags go through the
// registry; semver ranges are satisfied from the cache when possible.
//
// [include] - The lookup table a running script sees. Keys that were not
// declared fail instead of falling back to another installed version.
//
// [runner] - Executes a prepared script under Node.js.
//
// [integrations/npm] - npm registry client (dist-tags, versions) built on
// [integrations] and the [httputil] response cache.
//
// [install] - npm CLI installer.
//
// [errors] - Coded errors shared by all packages.
//
// [observability] - Hooks for parse, resolve, cache, install and HTTP events.
//
// # Common Workflows
//
// Prepare and run a script:
//
//	store := cache.New(root)
//	res := resolve.New(store, &install.NPM{}, npm.NewClient(nil, ""))
//	result, err := pipeline.NewRunner(res, logger).Prepare(ctx, pipeline.Options{Script: "hello.js"})
//	if err != nil {
//	    return err
//	}
//	err = (&runner.Node{}).Run(ctx, "hello.js", nil, result.Table)
//
// List declarations only:
//
//	sites, err := declare.ParseFile("hello.js")
//
// # Testing
//
// Run tests:
//
//	go test ./...                          # All tests
//	go test -tags integration ./pkg/...    # Include tests against npm
//
// [declare]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/declare
// [cache]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/cache
// [resolve]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/resolve
// [include]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/include
// [runner]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/runner
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/pipeline
// [install]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/install
// [integrations]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/integrations
// [integrations/npm]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/integrations/npm
// [httputil]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/httputil
// [errors]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/shelf/pkg/observability
package pkg
