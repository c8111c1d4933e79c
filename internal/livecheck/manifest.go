package livecheck

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/obentoo/tapcheck/internal/common/logger"
)

// ErrNoDeclaredVersion is returned when a manifest declares no version
var ErrNoDeclaredVersion = errors.New("no version found in manifest")

// Declared version patterns, in priority order.
var (
	archiveVersionPattern = regexp.MustCompile(`url\s+"[^"]*/archive/v?([^/"]+)/`)
	versionPattern        = regexp.MustCompile(`(?m)^\s*version\s+"([^"]+)"`)
	tagPattern            = regexp.MustCompile(`tag:\s+"v?([^"]+)"`)
)

var (
	caskNamePattern     = regexp.MustCompile(`(?m)^\s*cask\s+"([^"]+)"\s+do`)
	urlPattern          = regexp.MustCompile(`(?m)^\s*url\s+"([^"]+)"`)
	gitOptionsPattern   = regexp.MustCompile(`^\s*,\s*(?:\w+:\s*(?:"[^"]*"|:\w+)\s*,\s*)*(?:tag|revision):`)
	archPattern         = regexp.MustCompile(`(?m)^\s*arch\s+.*intel:\s*"([^"]*)"`)
	archVarPattern      = regexp.MustCompile(`(?m)^\s*(\w+)\s*=\s*on_arch_conditional\b.*intel:\s*"([^"]*)"`)
	interpolation       = regexp.MustCompile(`#\{([^}]*)\}`)
	livecheckURLPattern = regexp.MustCompile(`^url\s+(?:"([^"]+)"|(:url))`)
	strategyPattern     = regexp.MustCompile(`^strategy\s+:(\w+)`)
	regexCallPattern    = regexp.MustCompile(`^regex\s*\(?\s*(.+?)\s*\)?\s*$`)
	jsonFieldPattern    = regexp.MustCompile(`json\["([^"]+)"\](&?\.match)?`)
	gitlabHostPattern   = regexp.MustCompile(`^https?://[^/]*gitlab[^/]*/`)
)

// Manifest is the part of a cask or formula file relevant to livecheck.
type Manifest struct {
	Name string
	// Version is the declared version
	Version string
	// URL is the download URL as written, with Ruby interpolations
	URL string
	// DownloadURLTemplate is URL translated to a download template, or
	// empty when it uses interpolations that cannot be translated
	DownloadURLTemplate string
	// Livecheck is the discovery configuration, nil when none can be derived
	Livecheck *PackageConfig
}

// ReadDeclaredVersion extracts the declared version from manifest text:
// an /archive/ download URL first, then a version stanza, then a git tag.
func ReadDeclaredVersion(content string) (string, error) {
	for _, re := range []*regexp.Regexp{archiveVersionPattern, versionPattern, tagPattern} {
		if m := re.FindStringSubmatch(content); m != nil && !strings.Contains(m[1], "#{") {
			return m[1], nil
		}
	}
	return "", ErrNoDeclaredVersion
}

// LoadManifest reads and parses a cask or formula file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), ".rb")
	return ParseManifest(name, string(data))
}

// ParseManifest parses manifest text. fallbackName is used when the
// manifest does not name itself (formulae).
func ParseManifest(fallbackName, content string) (*Manifest, error) {
	m := &Manifest{Name: fallbackName}
	if c := caskNamePattern.FindStringSubmatch(content); c != nil {
		m.Name = c[1]
	}

	version, err := ReadDeclaredVersion(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	m.Version = version

	if loc := urlPattern.FindStringSubmatchIndex(content); loc != nil {
		m.URL = content[loc[2]:loc[3]]
		// git checkouts have no per-version download
		if !gitOptionsPattern.MatchString(content[loc[1]:]) {
			m.DownloadURLTemplate = translateURL(m.URL, archValues(content))
		}
	}

	lc, err := parseLivecheck(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	if lc == nil {
		lc = defaultLivecheck(m.URL)
	}
	if lc != nil {
		lc.Version = m.Version
		lc.DownloadURL = m.DownloadURLTemplate
		if lc.URL == URLFromDownload && lc.DownloadURL == "" {
			// GitHub strategies only need the repository
			if repo := githubRepoPattern.FindString(m.URL); repo != "" {
				lc.URL = repo
			}
		}
	}
	m.Livecheck = lc
	return m, nil
}

// archValues collects the intel variants of arch-dependent values.
func archValues(content string) map[string]string {
	vars := make(map[string]string)
	if m := archPattern.FindStringSubmatch(content); m != nil {
		vars["arch"] = m[1]
	}
	for _, m := range archVarPattern.FindAllStringSubmatch(content, -1) {
		vars[m[1]] = m[2]
	}
	return vars
}

// translateURL turns Ruby interpolations into template actions.
// It returns "" if any interpolation is not understood.
func translateURL(raw string, vars map[string]string) string {
	ok := true
	out := interpolation.ReplaceAllStringFunc(raw, func(expr string) string {
		inner := strings.TrimSpace(expr[2 : len(expr)-1])
		switch inner {
		case "version":
			return "{{.Version}}"
		case "version.csv.first":
			return "{{csv 0}}"
		case "version.csv.second":
			return "{{csv 1}}"
		case "version.csv.third":
			return "{{csv 2}}"
		case "version.split('+').first", `version.split("+").first`:
			return "{{base}}"
		}
		if v, found := vars[inner]; found {
			return v
		}
		ok = false
		return expr
	})
	if !ok {
		return ""
	}
	return out
}

// defaultLivecheck derives a source for manifests without a livecheck
// block from where they download.
func defaultLivecheck(rawURL string) *PackageConfig {
	if repo := githubRepoPattern.FindString(rawURL); repo != "" && strings.Contains(rawURL, "/releases/download/") {
		return &PackageConfig{URL: repo, Strategy: string(StrategyGitHubLatest)}
	}
	if gitlabHostPattern.MatchString(rawURL) && !strings.Contains(rawURL, "#{") {
		return &PackageConfig{URL: rawURL, Strategy: string(StrategyGitLabLatest)}
	}
	return nil
}

// livecheckBlock returns the body lines of the livecheck block, or nil.
func livecheckBlock(content string) []string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "livecheck do" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		var body []string
		for _, l := range lines[i+1:] {
			trimmed := strings.TrimSpace(l)
			if trimmed == "end" && len(l)-len(strings.TrimLeft(l, " \t")) == indent {
				return body
			}
			body = append(body, trimmed)
		}
		return body
	}
	return nil
}

func parseLivecheck(content string) (*PackageConfig, error) {
	body := livecheckBlock(content)
	if body == nil {
		return nil, nil
	}

	cfg := &PackageConfig{}
	var fields []string
	for _, line := range body {
		switch {
		case livecheckURLPattern.MatchString(line):
			m := livecheckURLPattern.FindStringSubmatch(line)
			cfg.URL = m[1]
			if m[2] != "" {
				cfg.URL = URLFromDownload
			}
		case strategyPattern.MatchString(line):
			cfg.Strategy = rubyStrategy(strategyPattern.FindStringSubmatch(line)[1])
		case regexCallPattern.MatchString(line):
			re, err := TranslateRubyRegex(regexCallPattern.FindStringSubmatch(line)[1])
			if err != nil {
				return nil, err
			}
			cfg.Regex = re
		}
		for _, f := range jsonFieldPattern.FindAllStringSubmatch(line, -1) {
			if f[2] != "" {
				cfg.RegexField = f[1]
			} else {
				fields = append(fields, f[1])
			}
		}
	}

	if cfg.Strategy == string(StrategyJSON) {
		for _, f := range fields {
			if f != cfg.RegexField {
				cfg.Path = f
				break
			}
		}
		if cfg.Path == "" {
			cfg.Path = cfg.RegexField
		}
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("livecheck block has no url")
	}
	return cfg, nil
}

// rubyStrategy maps a livecheck strategy symbol to a strategy name.
func rubyStrategy(sym string) string {
	switch sym {
	case "header_match":
		return string(StrategyRedirect)
	case "page_match":
		return string(StrategyPageMatch)
	default:
		return sym
	}
}

// TranslateRubyRegex converts a Ruby regex literal (/re/flags or
// %r{re}flags) to Go syntax.
func TranslateRubyRegex(lit string) (string, error) {
	var body, flags string
	switch {
	case strings.HasPrefix(lit, "%r{"):
		end := strings.LastIndex(lit, "}")
		if end < 3 {
			return "", fmt.Errorf("%w: unterminated %q", ErrInvalidRegexPattern, lit)
		}
		body, flags = lit[3:end], lit[end+1:]
	case strings.HasPrefix(lit, "/"):
		end := strings.LastIndex(lit, "/")
		if end < 1 {
			return "", fmt.Errorf("%w: unterminated %q", ErrInvalidRegexPattern, lit)
		}
		body, flags = lit[1:end], lit[end+1:]
	default:
		return "", fmt.Errorf("%w: not a regex literal: %q", ErrInvalidRegexPattern, lit)
	}

	var prefix string
	for _, f := range flags {
		switch f {
		case 'i':
			prefix += "i"
		case 'm':
			prefix += "s"
		case 'x':
			return "", fmt.Errorf("%w: extended mode is not supported", ErrInvalidRegexPattern)
		}
	}

	out := translateEscapes(body)
	if prefix != "" {
		out = "(?" + prefix + ")" + out
	}
	return out, nil
}

// translateEscapes rewrites Ruby-only escapes.
func translateEscapes(re string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(re); i++ {
		c := re[i]
		if c == '\\' && i+1 < len(re) {
			next := re[i+1]
			i++
			switch {
			case next == 'h' && inClass:
				b.WriteString("0-9a-fA-F")
			case next == 'h':
				b.WriteString("[0-9a-fA-F]")
			case next == 'Z':
				b.WriteString(`\z`)
			default:
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			continue
		}
		switch c {
		case '[':
			inClass = true
		case ']':
			inClass = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ScanTap builds a packages configuration from every cask and formula in
// a tap directory. Manifests without a usable livecheck source are skipped.
func ScanTap(dir string) (*PackagesConfig, error) {
	var files []string
	for _, sub := range []string{"Casks", "Formula"} {
		matches, err := filepath.Glob(filepath.Join(dir, sub, "*.rb"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no manifests found in %s", dir)
	}
	sort.Strings(files)

	pkgs := make(map[string]PackageConfig)
	for _, f := range files {
		m, err := LoadManifest(f)
		if err != nil {
			logger.Warn("skipping %s: %v", f, err)
			continue
		}
		if m.Livecheck == nil {
			logger.Debug("skipping %s: no livecheck source", m.Name)
			continue
		}
		lc := *m.Livecheck
		if rel, err := filepath.Rel(dir, f); err == nil {
			lc.Manifest = rel
		}
		pkgs[m.Name] = lc
	}
	return NewPackagesConfig(dir, pkgs), nil
}
