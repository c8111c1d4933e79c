package livecheck

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// Error variables for configuration errors
var (
	// ErrPackagesConfigNotFound is returned when the packages file does not exist
	ErrPackagesConfigNotFound = errors.New("packages file not found")
	// ErrPackageNotFound is returned when a package is not found in the configuration
	ErrPackageNotFound = errors.New("package not found in configuration")
	// ErrMissingURL is returned when a package configuration is missing the required URL field
	ErrMissingURL = errors.New("missing required field: url")
	// ErrMissingVersion is returned when neither version nor manifest is set
	ErrMissingVersion = errors.New("missing required field: version or manifest")
	// ErrMissingDownloadURL is returned when url = ":url" has nothing to expand
	ErrMissingDownloadURL = errors.New(`url ":url" requires download_url or manifest`)
)

// PackageConfig is one package section of the packages file.
type PackageConfig struct {
	// Version is the declared version
	Version string `toml:"version,omitempty"`
	// Manifest is a cask or formula file the declared version and download URL are read from,
	// relative to the packages file
	Manifest string `toml:"manifest,omitempty"`
	// DownloadURL is a download URL template, see RenderDownloadURL
	DownloadURL string `toml:"download_url,omitempty"`
	// URL is the discovery endpoint, or ":url" for the rendered download URL
	URL string `toml:"url"`
	// Strategy is github_latest, github_releases, gitlab_latest, redirect, json or page_match
	Strategy   string            `toml:"strategy,omitempty"`
	Path       string            `toml:"path,omitempty"`
	Regex      string            `toml:"regex,omitempty"`
	RegexField string            `toml:"regex_field,omitempty"`
	Listing    string            `toml:"listing,omitempty"`
	Selector   string            `toml:"selector,omitempty"`
	XPath      string            `toml:"xpath,omitempty"`
	Headers    map[string]string `toml:"headers,omitempty"`
}

// PackagesConfig is the parsed packages file, keyed by package name.
type PackagesConfig struct {
	Packages map[string]PackageConfig
	// baseDir resolves relative manifest paths
	baseDir string
}

// NewPackagesConfig creates a configuration whose manifest paths are
// relative to baseDir.
func NewPackagesConfig(baseDir string, pkgs map[string]PackageConfig) *PackagesConfig {
	if pkgs == nil {
		pkgs = make(map[string]PackageConfig)
	}
	return &PackagesConfig{Packages: pkgs, baseDir: baseDir}
}

// LoadPackagesConfig loads and parses a packages file. Each top-level
// ["name"] section is one package.
func LoadPackagesConfig(path string) (*PackagesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPackagesConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var pkgs map[string]PackageConfig
	if err := toml.Unmarshal(data, &pkgs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return NewPackagesConfig(filepath.Dir(path), pkgs), nil
}

// Names returns the package names in sorted order.
func (c *PackagesConfig) Names() []string {
	names := make([]string, 0, len(c.Packages))
	for name := range c.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SourceFor builds the discovery source described by cfg.
func SourceFor(cfg PackageConfig) (Source, error) {
	src := Source{
		URL:        cfg.URL,
		Strategy:   Strategy(cfg.Strategy),
		Regex:      cfg.Regex,
		Path:       cfg.Path,
		RegexField: cfg.RegexField,
		Listing:    Listing(cfg.Listing),
		Selector:   cfg.Selector,
		XPath:      cfg.XPath,
		Headers:    cfg.Headers,
	}

	switch cfg.Strategy {
	case "":
		if cfg.Regex != "" {
			src.Kind = PatternMatch
			src.Strategy = StrategyPageMatch
		} else {
			src.Kind = DirectURL
			src.Strategy = StrategyRedirect
		}
	case "regex":
		src.Kind = PatternMatch
		src.Strategy = StrategyPageMatch
	default:
		kind, ok := KindOfStrategy(src.Strategy)
		if !ok {
			return Source{}, configErrorf("unknown strategy %q", cfg.Strategy)
		}
		src.Kind = kind
	}
	return src, nil
}

// ValidatePackageConfig checks a single package without network access.
// Every problem found is reported.
func ValidatePackageConfig(name string, cfg PackageConfig) error {
	var errs []error
	if cfg.URL == "" {
		errs = append(errs, ErrMissingURL)
	}
	if cfg.Version == "" && cfg.Manifest == "" {
		errs = append(errs, ErrMissingVersion)
	}
	if cfg.URL == URLFromDownload && cfg.DownloadURL == "" && cfg.Manifest == "" {
		errs = append(errs, ErrMissingDownloadURL)
	}
	if cfg.URL != "" {
		src, err := SourceFor(cfg)
		if err == nil {
			err = src.Validate()
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("package %s: %w", name, err)
	}
	return nil
}

// ValidateAll validates every package and joins all errors.
func (c *PackagesConfig) ValidateAll() error {
	var errs []error
	for _, name := range c.Names() {
		if err := ValidatePackageConfig(name, c.Packages[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package assembles the descriptor and source for name, reading the
// manifest when the declared version or download URL come from it.
func (c *PackagesConfig) Package(name string) (Package, error) {
	cfg, ok := c.Packages[name]
	if !ok {
		return Package{}, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}

	desc := PackageDescriptor{
		Name:                name,
		DeclaredVersion:     cfg.Version,
		DownloadURLTemplate: cfg.DownloadURL,
	}
	if cfg.Manifest != "" && (desc.DeclaredVersion == "" || desc.DownloadURLTemplate == "") {
		path := cfg.Manifest
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.baseDir, path)
		}
		m, err := LoadManifest(path)
		if err != nil {
			return Package{}, configError(err)
		}
		if desc.DeclaredVersion == "" {
			desc.DeclaredVersion = m.Version
		}
		if desc.DownloadURLTemplate == "" {
			desc.DownloadURLTemplate = m.DownloadURLTemplate
		}
	}

	src, err := SourceFor(cfg)
	if err != nil {
		return Package{}, err
	}
	return Package{Descriptor: desc, Source: src}, nil
}
