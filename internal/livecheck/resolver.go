package livecheck

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/obentoo/tapcheck/internal/common/logger"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds a single resolution.
const DefaultTimeout = 10 * time.Second

// DefaultGitHubAPI is the GitHub REST API base URL.
const DefaultGitHubAPI = "https://api.github.com"

// githubRepoPattern extracts owner and repository from a github.com URL.
var githubRepoPattern = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/#?]+)`)

// VersionResolver discovers the latest upstream version of a package.
// Implementations must be safe for concurrent use.
type VersionResolver interface {
	Resolve(ctx context.Context, desc PackageDescriptor, src Source) (ResolvedVersion, error)
}

// Resolver is the network-backed VersionResolver. Each call performs at
// most one fetch and has no side effects beyond it.
type Resolver struct {
	fetcher   Fetcher
	timeout   time.Duration
	githubAPI string
}

// ResolverOption is a functional option for configuring Resolver
type ResolverOption func(*Resolver)

// WithTimeout bounds each resolution. Zero disables the bound.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// WithGitHubAPI overrides the GitHub API base URL (useful for testing)
func WithGitHubAPI(base string) ResolverOption {
	return func(r *Resolver) {
		r.githubAPI = strings.TrimRight(base, "/")
	}
}

// NewResolver creates a resolver reading upstream documents through f.
func NewResolver(f Fetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fetcher:   f,
		timeout:   DefaultTimeout,
		githubAPI: DefaultGitHubAPI,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates src, fetches its endpoint once and extracts the
// version. Errors are always *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, desc PackageDescriptor, src Source) (ResolvedVersion, error) {
	v, err := r.resolve(ctx, desc, src)
	if err != nil {
		logger.Debug("%s: %v", desc.Name, err)
		return ResolvedVersion{}, err
	}
	return v, nil
}

func (r *Resolver) resolve(ctx context.Context, desc PackageDescriptor, src Source) (ResolvedVersion, *ResolutionError) {
	cs, rerr := src.compile()
	if rerr != nil {
		return ResolvedVersion{}, rerr
	}

	target, rerr := sourceURL(desc, cs.URL)
	if rerr != nil {
		return ResolvedVersion{}, rerr
	}

	req, rerr := r.request(cs, target)
	if rerr != nil {
		return ResolvedVersion{}, rerr
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger.Debug("%s: fetching %s (%s)", desc.Name, req.URL, cs.strategy())
	doc, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		return ResolvedVersion{}, asResolutionError(req.URL, err)
	}

	raw, rerr := extract(cs, desc, doc)
	if rerr != nil {
		return ResolvedVersion{}, rerr
	}

	value := Normalize(raw)
	if value == "" {
		return ResolvedVersion{}, noMatchError(req.URL, fmt.Errorf("%w: empty version", ErrRegexNoMatch))
	}
	if strings.ContainsFunc(value, isVersionBreak) {
		return ResolvedVersion{}, noMatchError(req.URL, fmt.Errorf("%w: version %q contains whitespace or control characters", ErrRegexNoMatch, value))
	}
	return ResolvedVersion{Value: value, RawMatch: raw}, nil
}

// isVersionBreak reports runes that never occur in a version. Values
// carrying them would split line-oriented outputs.
func isVersionBreak(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r)
}

// sourceURL resolves the ":url" shorthand against the package's download URL.
func sourceURL(desc PackageDescriptor, raw string) (string, *ResolutionError) {
	if raw != URLFromDownload {
		return raw, nil
	}
	if desc.DownloadURLTemplate == "" {
		return "", configErrorf("source url %q needs a download_url", URLFromDownload)
	}
	u, err := RenderDownloadURL(desc.DownloadURLTemplate, desc.DeclaredVersion)
	if err != nil {
		return "", configError(err)
	}
	return u, nil
}

// request builds the upstream request for the source's strategy.
func (r *Resolver) request(cs *compiledSource, target string) (Request, *ResolutionError) {
	req := Request{URL: target, Headers: map[string]string{}}
	for k, v := range cs.Headers {
		req.Headers[k] = v
	}

	switch cs.strategy() {
	case StrategyGitHubLatest, StrategyGitHubReleases:
		endpoint, err := r.githubEndpoint(target, cs.strategy())
		if err != nil {
			return Request{}, err
		}
		req.URL = endpoint
		setDefault(req.Headers, "Accept", "application/vnd.github+json")
	case StrategyGitLabLatest:
		endpoint, host, err := gitlabEndpoint(target)
		if err != nil {
			return Request{}, err
		}
		req.URL = endpoint
		req.GitLabHost = host
		setDefault(req.Headers, "Accept", "application/json")
	case StrategyJSON:
		setDefault(req.Headers, "Accept", "application/json")
	}
	return req, nil
}

func setDefault(h map[string]string, key, value string) {
	for k := range h {
		if strings.EqualFold(k, key) {
			return
		}
	}
	h[key] = value
}

// githubEndpoint maps a repository or download URL to its releases API endpoint.
// API URLs are used unchanged.
func (r *Resolver) githubEndpoint(target string, s Strategy) (string, *ResolutionError) {
	if isGitHubAPIURL(target) || strings.HasPrefix(target, r.githubAPI+"/") {
		return target, nil
	}
	m := githubRepoPattern.FindStringSubmatch(target)
	if m == nil {
		return "", configErrorf("%s needs a github.com url, got %q", s, target)
	}
	owner, repo := m[1], strings.TrimSuffix(m[2], ".git")
	if s == StrategyGitHubLatest {
		return fmt.Sprintf("%s/repos/%s/%s/releases/latest", r.githubAPI, owner, repo), nil
	}
	return fmt.Sprintf("%s/repos/%s/%s/releases", r.githubAPI, owner, repo), nil
}

// gitlabEndpoint maps a GitLab project URL to the latest release permalink
// and returns the project's host.
func gitlabEndpoint(target string) (string, string, *ResolutionError) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "", "", configErrorf("gitlab_latest needs a project url, got %q", target)
	}
	if isGitLabAPIURL(target) {
		return target, u.Host, nil
	}
	project := strings.Trim(u.Path, "/")
	if i := strings.Index(project, "/-/"); i >= 0 {
		project = project[:i]
	}
	project = strings.TrimSuffix(project, ".git")
	if strings.Count(project, "/") < 1 {
		return "", "", configErrorf("gitlab_latest needs a project url, got %q", target)
	}
	return fmt.Sprintf("%s://%s/api/v4/projects/%s/releases/permalink/latest",
		u.Scheme, u.Host, url.PathEscape(project)), u.Host, nil
}

// asResolutionError ensures fetcher errors carry a kind.
func asResolutionError(target string, err error) *ResolutionError {
	if re, ok := err.(*ResolutionError); ok {
		return re
	}
	return fetchError(target, ReasonNetwork, 0, err)
}

// extract reads the raw version from a fetched document.
func extract(cs *compiledSource, desc PackageDescriptor, doc *Document) (string, *ResolutionError) {
	switch cs.strategy() {
	case StrategyJSON:
		return extractStructured(cs, desc, doc)
	case StrategyGitHubLatest, StrategyGitLabLatest:
		tag, err := readJSONField(doc.URL, doc.Body, "tag_name")
		if err != nil {
			return "", err
		}
		return applyOptionalRegex(cs, doc.URL, tag)
	case StrategyGitHubReleases:
		return extractReleases(cs, doc)
	case StrategyRedirect:
		return extractRedirect(cs, doc)
	default:
		return extractPattern(cs, doc)
	}
}

func applyOptionalRegex(cs *compiledSource, source, text string) (string, *ResolutionError) {
	if cs.re == nil {
		return text, nil
	}
	v, ok := matchVersion(cs.re, text, ListingFirst)
	if !ok {
		return "", noMatchError(source, fmt.Errorf("%w: %q", ErrRegexNoMatch, text))
	}
	return v, nil
}

// extractStructured reads the version field. A regex over a second field
// supplies the auxiliary component of compound versions.
func extractStructured(cs *compiledSource, desc PackageDescriptor, doc *Document) (string, *ResolutionError) {
	primary, err := readJSONField(doc.URL, doc.Body, cs.Path)
	if err != nil {
		return "", err
	}
	if cs.re == nil {
		return primary, nil
	}

	field, err := readJSONField(doc.URL, doc.Body, cs.RegexField)
	if err != nil {
		return "", err
	}
	aux, ok := matchVersion(cs.re, field, ListingFirst)
	if !ok {
		return "", noMatchError(doc.URL, fmt.Errorf("%w: %s", ErrRegexNoMatch, cs.RegexField))
	}
	if desc.Compound() {
		return Normalize(primary) + "," + aux, nil
	}
	// a single capture is a second reading of the version and must agree
	if cs.re.NumSubexp() == 1 && Normalize(aux) != Normalize(primary) {
		return "", noMatchError(doc.URL, fmt.Errorf("%w: %s has %q, %s has %q",
			ErrRegexNoMatch, cs.RegexField, aux, cs.Path, primary))
	}
	return primary, nil
}

// extractReleases scans a release listing, skipping drafts and prereleases.
func extractReleases(cs *compiledSource, doc *Document) (string, *ResolutionError) {
	if !gjson.ValidBytes(doc.Body) {
		return "", decodeError(doc.URL, fmt.Errorf("failed to parse JSON"))
	}
	list := gjson.ParseBytes(doc.Body)
	if !list.IsArray() {
		return "", decodeError(doc.URL, fmt.Errorf("expected a JSON array of releases"))
	}

	var found []string
	list.ForEach(func(_, rel gjson.Result) bool {
		if rel.Get("draft").Bool() || rel.Get("prerelease").Bool() {
			return true
		}
		tag := rel.Get("tag_name").String()
		if tag == "" {
			return true
		}
		if cs.re != nil {
			v, ok := matchVersion(cs.re, tag, ListingFirst)
			if !ok {
				return true
			}
			tag = v
		}
		found = append(found, tag)
		return true
	})

	if len(found) == 0 {
		return "", noMatchError(doc.URL, fmt.Errorf("no matching release"))
	}
	if cs.Listing == ListingNewestLast {
		return found[len(found)-1], nil
	}
	return found[0], nil
}

// extractRedirect reads the version from the final URL after redirects,
// falling back to the body when a regex is set.
func extractRedirect(cs *compiledSource, doc *Document) (string, *ResolutionError) {
	final := doc.FinalURL
	if final == "" {
		final = doc.URL
	}
	if cs.re == nil {
		u, err := url.Parse(final)
		if err != nil {
			return "", decodeError(doc.URL, err)
		}
		seg := path.Base(u.Path)
		if seg == "/" || seg == "." {
			return "", noMatchError(doc.URL, fmt.Errorf("final url %q has no path", final))
		}
		return seg, nil
	}
	if v, ok := matchVersion(cs.re, final, ListingFirst); ok {
		return v, nil
	}
	if v, ok := matchVersion(cs.re, string(doc.Body), cs.Listing); ok {
		return v, nil
	}
	return "", noMatchError(doc.URL, ErrRegexNoMatch)
}

func extractPattern(cs *compiledSource, doc *Document) (string, *ResolutionError) {
	text := string(doc.Body)
	if cs.Selector != "" || cs.XPath != "" {
		narrowed, err := narrowHTML(doc.URL, doc.Body, cs.Selector, cs.XPath)
		if err != nil {
			return "", err
		}
		text = narrowed
	}
	v, ok := matchVersion(cs.re, text, cs.Listing)
	if !ok {
		return "", noMatchError(doc.URL, ErrRegexNoMatch)
	}
	return v, nil
}
