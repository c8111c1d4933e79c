package livecheck

import (
	"context"
	"errors"

	"github.com/obentoo/tapcheck/internal/common/logger"
	"github.com/obentoo/tapcheck/internal/common/vercmp"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of packages resolved at once.
const DefaultConcurrency = 4

// Status is the outcome of checking one package.
type Status string

const (
	StatusUpToDate        Status = "up_to_date"
	StatusUpdateAvailable Status = "update_available"
	StatusError           Status = "error"
)

// Package pairs a descriptor with its discovery source.
type Package struct {
	Descriptor PackageDescriptor
	Source     Source
}

// CheckResult is one line of the resolution report.
type CheckResult struct {
	Name            string `json:"name"`
	DeclaredVersion string `json:"declared_version"`
	ResolvedVersion string `json:"resolved_version,omitempty"`
	Status          Status `json:"status"`
	ErrorDetail     string `json:"error_detail,omitempty"`
	// ErrorKind is config_error, fetch_error, decode_error or no_match
	ErrorKind string `json:"error_kind,omitempty"`
	// ErrorReason refines fetch errors
	ErrorReason string `json:"error_reason,omitempty"`
	FromCache   bool   `json:"from_cache,omitempty"`
	// DownloadURL is the download template rendered with the resolved version
	DownloadURL string `json:"download_url,omitempty"`
	Err         error  `json:"-"`
}

// Comparator decides whether a resolved version is an update.
type Comparator interface {
	HasUpdate(declared, resolved string) bool
}

// EqualityComparator reports an update whenever the versions differ.
type EqualityComparator struct{}

// HasUpdate reports resolved != declared.
func (EqualityComparator) HasUpdate(declared, resolved string) bool {
	return Normalize(declared) != resolved
}

// OrderedComparator reports an update only when resolved orders after declared.
type OrderedComparator struct{}

// HasUpdate reports whether resolved is newer than declared.
func (OrderedComparator) HasUpdate(declared, resolved string) bool {
	return vercmp.Newer(resolved, declared)
}

// Checker resolves a batch of packages concurrently and compares each
// result against the declared version.
type Checker struct {
	resolver    VersionResolver
	concurrency int
	comparator  Comparator
}

// CheckerOption is a functional option for configuring Checker
type CheckerOption func(*Checker)

// WithConcurrency sets the number of packages resolved at once.
// Values below one select DefaultConcurrency.
func WithConcurrency(n int) CheckerOption {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithComparator replaces the default EqualityComparator.
func WithComparator(cmp Comparator) CheckerOption {
	return func(c *Checker) {
		if cmp != nil {
			c.comparator = cmp
		}
	}
}

// NewChecker creates a checker backed by resolver.
func NewChecker(resolver VersionResolver, opts ...CheckerOption) *Checker {
	c := &Checker{
		resolver:    resolver,
		concurrency: DefaultConcurrency,
		comparator:  EqualityComparator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckPackage resolves a single package. Failures are reported in the
// result, never returned.
func (c *Checker) CheckPackage(ctx context.Context, pkg Package) CheckResult {
	desc := pkg.Descriptor
	result := CheckResult{
		Name:            desc.Name,
		DeclaredVersion: desc.DeclaredVersion,
	}

	v, err := c.resolver.Resolve(ctx, desc, pkg.Source)
	if err != nil {
		return ErrorResult(result, err)
	}

	result.ResolvedVersion = v.Value
	result.FromCache = v.FromCache
	result.Status = StatusUpToDate
	if c.comparator.HasUpdate(desc.DeclaredVersion, v.Value) {
		result.Status = StatusUpdateAvailable
	} else if olderThanDeclared(desc.DeclaredVersion, v.Value) {
		logger.Warn("%s: upstream %s is older than declared %s", desc.Name, v.Value, desc.DeclaredVersion)
	}

	if desc.DownloadURLTemplate != "" {
		if u, err := RenderDownloadURL(desc.DownloadURLTemplate, v.Value); err == nil {
			result.DownloadURL = u
		}
	}
	return result
}

// ErrorResult marks result as failed with err.
func ErrorResult(result CheckResult, err error) CheckResult {
	result.Status = StatusError
	result.ErrorDetail = err.Error()
	result.Err = err
	var re *ResolutionError
	if errors.As(err, &re) {
		result.ErrorKind = re.Kind.String()
		result.ErrorReason = string(re.Reason)
	}
	return result
}

// CheckAll resolves every package and returns one result per package in
// input order. A failing package never stops the others.
func (c *Checker) CheckAll(ctx context.Context, pkgs []Package) []CheckResult {
	results := make([]CheckResult, len(pkgs))

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for i, pkg := range pkgs {
		g.Go(func() error {
			results[i] = c.CheckPackage(ctx, pkg)
			return nil
		})
	}
	g.Wait()

	return results
}

// olderThanDeclared reports whether resolved orders strictly before the
// declared version. Equal versions spelled differently are not older.
func olderThanDeclared(declared, resolved string) bool {
	return vercmp.Compare(resolved, Normalize(declared)) < 0
}
