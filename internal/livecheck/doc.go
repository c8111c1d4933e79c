// Package livecheck discovers the latest upstream version of tap packages
// and compares it against the version each package declares.
//
// The package implements:
//   - Discovery sources of three kinds: direct URLs (redirects and forge
//     release APIs), structured JSON endpoints and regex page matches
//   - A Resolver performing exactly one fetch per resolution
//   - Retry and cache decorators around any VersionResolver
//   - A Checker resolving packages concurrently without aborting on failure
//   - Package configuration via TOML files or cask/formula manifests
//
// Usage:
//
//	cfg, err := livecheck.LoadPackagesConfig("livecheck.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resolver := livecheck.NewResolver(livecheck.NewHTTPFetcher())
//	checker := livecheck.NewChecker(resolver, livecheck.WithConcurrency(4))
//	pkg, _ := cfg.Package("zen-browser-linux")
//	results := checker.CheckAll(ctx, []livecheck.Package{pkg})
package livecheck
