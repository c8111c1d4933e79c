package livecheck

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
)

// URLFromDownload as a source URL means "use the package's rendered download URL".
const URLFromDownload = ":url"

// SourceKind is the discovery source variant.
type SourceKind int

const (
	// DirectURL is an endpoint whose final redirect target or release listing encodes the version
	DirectURL SourceKind = iota + 1
	// StructuredEndpoint is a JSON document with the version in a named field
	StructuredEndpoint
	// PatternMatch applies a regex to the fetched document text
	PatternMatch
)

func (k SourceKind) String() string {
	switch k {
	case DirectURL:
		return "direct_url"
	case StructuredEndpoint:
		return "structured_endpoint"
	case PatternMatch:
		return "pattern_match"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// Strategy selects how a source is fetched and read.
type Strategy string

const (
	StrategyRedirect       Strategy = "redirect"
	StrategyGitHubLatest   Strategy = "github_latest"
	StrategyGitHubReleases Strategy = "github_releases"
	StrategyGitLabLatest   Strategy = "gitlab_latest"
	StrategyJSON           Strategy = "json"
	StrategyPageMatch      Strategy = "page_match"
)

// strategyKinds maps each strategy to the variant it belongs to.
var strategyKinds = map[Strategy]SourceKind{
	StrategyRedirect:       DirectURL,
	StrategyGitHubLatest:   DirectURL,
	StrategyGitHubReleases: DirectURL,
	StrategyGitLabLatest:   DirectURL,
	StrategyJSON:           StructuredEndpoint,
	StrategyPageMatch:      PatternMatch,
}

// KindOfStrategy returns the variant a strategy belongs to.
func KindOfStrategy(s Strategy) (SourceKind, bool) {
	k, ok := strategyKinds[s]
	return k, ok
}

// Listing declares how a document with several matches is ordered.
type Listing string

const (
	// ListingFirst takes the first match in document order
	ListingFirst Listing = "first"
	// ListingNewestFirst is a reverse-chronological listing; the top match is the newest
	ListingNewestFirst Listing = "newest_first"
	// ListingNewestLast is a chronological listing; the bottom match is the newest
	ListingNewestLast Listing = "newest_last"
)

// PackageDescriptor identifies a package and its declared version.
// It is never modified by resolution.
type PackageDescriptor struct {
	Name string
	// DeclaredVersion is opaque; it may be compound ("2.3.40,230922a1")
	DeclaredVersion string
	// DownloadURLTemplate is a text/template, see RenderDownloadURL
	DownloadURLTemplate string
}

// Compound reports whether the declared version has comma-separated components.
func (d PackageDescriptor) Compound() bool {
	return strings.Contains(d.DeclaredVersion, ",")
}

// Source describes where and how to discover the latest upstream version.
type Source struct {
	Kind     SourceKind
	Strategy Strategy
	// URL is the endpoint, or URLFromDownload
	URL string
	// Regex must contain at least one capture group; group 1 is the version
	Regex string
	// Path is the JSON path of the version field (StructuredEndpoint)
	Path string
	// RegexField is the JSON path the Regex is applied to (StructuredEndpoint)
	RegexField string
	Listing    Listing
	// Selector or XPath narrow an HTML document before Regex is applied (PatternMatch)
	Selector string
	XPath    string
	Headers  map[string]string
}

// ResolvedVersion is the outcome of a successful resolution.
type ResolvedVersion struct {
	// Value is trimmed, non-empty and has no leading "v"
	Value string
	// RawMatch is the capture or field value before normalization
	RawMatch string
	// FromCache is set by caching resolvers
	FromCache bool
}

// compiledSource is a validated Source ready for fetching.
type compiledSource struct {
	Source
	re *regexp.Regexp
}

// Validate checks a source without touching the network.
func (s Source) Validate() error {
	_, err := s.compile()
	if err != nil {
		return err
	}
	return nil
}

func (s Source) compile() (*compiledSource, *ResolutionError) {
	if strings.TrimSpace(s.URL) == "" {
		return nil, configErrorf("missing source url")
	}

	if s.Strategy != "" {
		kind, ok := strategyKinds[s.Strategy]
		if !ok {
			return nil, configErrorf("unknown strategy %q", s.Strategy)
		}
		if kind != s.Kind {
			return nil, configErrorf("strategy %q cannot be used with a %s source", s.Strategy, s.Kind)
		}
	}

	switch s.Listing {
	case "", ListingFirst, ListingNewestFirst, ListingNewestLast:
	default:
		return nil, configErrorf("unknown listing order %q", s.Listing)
	}

	cs := &compiledSource{Source: s}
	if s.Regex != "" {
		re, err := regexp.Compile(s.Regex)
		if err != nil {
			return nil, configError(fmt.Errorf("%w: %v", ErrInvalidRegexPattern, err))
		}
		if re.NumSubexp() < 1 {
			return nil, configError(ErrNoCaptureGroup)
		}
		cs.re = re
	}

	if s.Kind != PatternMatch && (s.Selector != "" || s.XPath != "") {
		return nil, configErrorf("selector and xpath are only valid for pattern_match sources")
	}

	switch s.Kind {
	case DirectURL:
		if s.Path != "" || s.RegexField != "" {
			return nil, configErrorf("path and regex_field are only valid for json sources")
		}
	case StructuredEndpoint:
		if s.Path == "" {
			return nil, configError(fmt.Errorf("%w: json source needs a path", ErrInvalidJSONPath))
		}
		if _, err := toGJSONPath(s.Path); err != nil {
			return nil, configError(err)
		}
		if (s.Regex == "") != (s.RegexField == "") {
			return nil, configErrorf("regex and regex_field must be set together")
		}
		if s.RegexField != "" {
			if _, err := toGJSONPath(s.RegexField); err != nil {
				return nil, configError(err)
			}
		}
	case PatternMatch:
		if s.Regex == "" {
			return nil, configError(fmt.Errorf("%w: pattern_match source needs a regex", ErrInvalidRegexPattern))
		}
		if s.Selector != "" && s.XPath != "" {
			return nil, configErrorf("selector and xpath are mutually exclusive")
		}
		if s.Selector != "" {
			if _, err := cascadia.Compile(s.Selector); err != nil {
				return nil, configErrorf("invalid CSS selector %q: %v", s.Selector, err)
			}
		}
		if s.XPath != "" {
			if _, err := xpath.Compile(s.XPath); err != nil {
				return nil, configErrorf("invalid XPath expression %q: %v", s.XPath, err)
			}
		}
		if s.Path != "" || s.RegexField != "" {
			return nil, configErrorf("path and regex_field are only valid for json sources")
		}
	default:
		return nil, configErrorf("unknown source kind %d", int(s.Kind))
	}

	return cs, nil
}

// strategy returns the effective strategy, defaulting per kind.
func (s *compiledSource) strategy() Strategy {
	if s.Strategy != "" {
		return s.Strategy
	}
	switch s.Kind {
	case StructuredEndpoint:
		return StrategyJSON
	case PatternMatch:
		return StrategyPageMatch
	default:
		return StrategyRedirect
	}
}
