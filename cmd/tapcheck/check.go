package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/obentoo/tapcheck/internal/common/config"
	"github.com/obentoo/tapcheck/internal/common/logger"
	"github.com/obentoo/tapcheck/internal/common/version"
	"github.com/obentoo/tapcheck/internal/livecheck"
	"github.com/obentoo/tapcheck/internal/report"
	"github.com/spf13/cobra"
)

// errCheckFailed is returned with --fail-on-error when a package failed.
var errCheckFailed = errors.New("check failed")

type checkOptions struct {
	concurrency int
	timeout     time.Duration
	retries     int
	force       bool
	noCache     bool
	ordered     bool
	json        bool
	github      bool
	urls        bool
	failOnError bool
}

var checkOpts checkOptions

var checkCmd = &cobra.Command{
	Use:   "check [package...]",
	Short: "Resolve upstream versions and report outdated packages",
	Long: `Resolve the latest upstream version of each package and compare it with
the declared version.

Examples:
  tapcheck check                          Check every package in livecheck.toml
  tapcheck check zed-linux cursor-linux   Check specific packages
  tapcheck check --tap .                  Check the casks and formulae of a tap
  tapcheck check --json                   Print the report as JSON
  tapcheck check --github                 Also write GitHub Actions outputs
  tapcheck check --ordered --urls         Only count newer versions, print download URLs`,
	RunE: runCheck,
}

func init() {
	f := checkCmd.Flags()
	f.IntVarP(&checkOpts.concurrency, "concurrency", "j", 0, "Packages resolved at once (default: check.concurrency or 4)")
	f.DurationVar(&checkOpts.timeout, "timeout", config.DefaultTimeout, "Per-fetch timeout, 0 disables (default: check.timeout)")
	f.IntVar(&checkOpts.retries, "retries", 0, "Retries for transient fetch failures (default: check.retries)")
	f.BoolVar(&checkOpts.force, "force", false, "Ignore cached versions")
	f.BoolVar(&checkOpts.noCache, "no-cache", false, "Neither read nor write the resolution cache")
	f.BoolVar(&checkOpts.ordered, "ordered", false, "Only report strictly newer upstream versions as updates")
	f.BoolVar(&checkOpts.json, "json", false, "Print the report as a JSON array")
	f.BoolVar(&checkOpts.github, "github", false, "Append results to $GITHUB_OUTPUT and $GITHUB_STEP_SUMMARY")
	f.BoolVar(&checkOpts.urls, "urls", false, "Print the download URL for each update")
	f.BoolVar(&checkOpts.failOnError, "fail-on-error", false, "Exit non-zero when any package fails to resolve")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	pkgCfg, err := loadPackages(cfg)
	if err != nil {
		return err
	}

	names := args
	if len(names) == 0 {
		names = pkgCfg.Names()
	}
	for _, name := range names {
		if _, ok := pkgCfg.Packages[name]; !ok {
			return fmt.Errorf("%w: %s", livecheck.ErrPackageNotFound, name)
		}
	}

	resolver, err := buildResolver(cmd, cfg)
	if err != nil {
		return err
	}

	concurrency := checkOpts.concurrency
	if concurrency <= 0 {
		concurrency = cfg.GetConcurrency()
	}
	var comparator livecheck.Comparator = livecheck.EqualityComparator{}
	if checkOpts.ordered {
		comparator = livecheck.OrderedComparator{}
	}
	checker := livecheck.NewChecker(resolver,
		livecheck.WithConcurrency(concurrency),
		livecheck.WithComparator(comparator),
	)

	results := checkPackages(cmd, checker, pkgCfg, names)

	out := cmd.OutOrStdout()
	if checkOpts.json {
		if err := report.WriteJSON(out, results); err != nil {
			return err
		}
	} else {
		report.WriteText(out, results, report.TextOptions{ShowURLs: checkOpts.urls})
	}

	if checkOpts.github {
		if err := report.GitHubActionsFromEnv().Write(results); err != nil {
			return err
		}
	}

	summary := report.Summarize(results)
	if summary.Errors > 0 && (checkOpts.failOnError || cfg.Check.FailOnError) {
		return fmt.Errorf("%w: %d of %d package(s) could not be resolved", errCheckFailed, summary.Errors, summary.Total)
	}
	return nil
}

// checkPackages resolves names in order. Packages whose manifest cannot be
// read are reported as errors without being resolved.
func checkPackages(cmd *cobra.Command, checker *livecheck.Checker, pkgCfg *livecheck.PackagesConfig, names []string) []livecheck.CheckResult {
	results := make([]livecheck.CheckResult, len(names))
	var pkgs []livecheck.Package
	var slots []int
	for i, name := range names {
		pkg, err := pkgCfg.Package(name)
		if err != nil {
			results[i] = livecheck.ErrorResult(livecheck.CheckResult{Name: name}, err)
			continue
		}
		pkgs = append(pkgs, pkg)
		slots = append(slots, i)
	}

	logger.Debug("checking %d package(s)", len(pkgs))
	for j, r := range checker.CheckAll(cmd.Context(), pkgs) {
		results[slots[j]] = r
	}
	return results
}

// buildResolver stacks the HTTP resolver with retries and the cache as
// configured by flags and config.
func buildResolver(cmd *cobra.Command, cfg *config.Config) (livecheck.VersionResolver, error) {
	timeout := checkOpts.timeout
	if !cmd.Flags().Changed("timeout") {
		t, err := cfg.GetTimeout()
		if err != nil {
			return nil, err
		}
		timeout = t
	}

	fetcher := livecheck.NewHTTPFetcher(
		livecheck.WithUserAgent(version.UserAgent()),
		// http.user_agent from config replaces the default
		livecheck.WithUserAgent(cfg.HTTP.UserAgent),
		livecheck.WithDefaultHeaders(cfg.HTTP.Headers),
		livecheck.WithGitHubToken(cfg.GitHubToken()),
		livecheck.WithGitLabToken(cfg.GitLabToken()),
	)
	var resolver livecheck.VersionResolver = livecheck.NewResolver(fetcher, livecheck.WithTimeout(timeout))

	retries := checkOpts.retries
	if !cmd.Flags().Changed("retries") {
		retries = cfg.Check.Retries
	}
	if retries > 0 {
		rc := livecheck.DefaultRetryConfig()
		rc.MaxRetries = retries
		resolver = livecheck.NewRetryingResolver(resolver, rc)
	}

	if checkOpts.noCache {
		return resolver, nil
	}
	ttl, err := cfg.GetCacheTTL()
	if err != nil {
		return nil, err
	}
	if ttl == 0 {
		return resolver, nil
	}
	cache, err := livecheck.OpenCache(cacheDir(), livecheck.WithTTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return livecheck.NewCachingResolver(resolver, cache, checkOpts.force), nil
}
