package livecheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "tapcheck/1.0"

// maxBodySize caps how much of an upstream document is read.
const maxBodySize = 16 << 20

// envVarPattern matches ${VAR_NAME} syntax for environment variable substitution
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Request is a single upstream GET.
type Request struct {
	URL     string
	Headers map[string]string
	// GitLabHost is the host of the project a gitlab_latest request
	// targets. The GitLab token is only sent to this host.
	GitLabHost string
}

// Document is a fetched upstream response.
type Document struct {
	// URL is the requested URL
	URL string
	// FinalURL is the URL after redirects
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher performs one upstream read. Implementations must return a
// *ResolutionError of kind KindFetch on failure.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Document, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request) (*Document, error)

// Fetch calls f(ctx, req).
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*Document, error) {
	return f(ctx, req)
}

// HTTPFetcher fetches documents over HTTP(S), following redirects.
// It does not retry; wrap the resolver with RetryingResolver for that.
type HTTPFetcher struct {
	client *http.Client
	// defaultHeaders are headers applied to all requests
	defaultHeaders map[string]string
	// githubToken is sent to api.github.com
	githubToken string
	// gitlabToken is sent as PRIVATE-TOKEN to Request.GitLabHost
	gitlabToken string
	userAgent   string
}

// FetcherOption is a functional option for configuring HTTPFetcher
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient sets a custom underlying HTTP client (useful for testing)
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithDefaultHeaders sets headers applied before request-specific headers
func WithDefaultHeaders(headers map[string]string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.defaultHeaders = headers
	}
}

// WithGitHubToken sets the GitHub API token for authentication
func WithGitHubToken(token string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.githubToken = token
	}
}

// WithGitLabToken sets the GitLab API token for authentication
func WithGitLabToken(token string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.gitlabToken = token
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// NewHTTPFetcher creates a fetcher backed by net/http.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a GET honoring ctx for cancellation and deadlines.
func (f *HTTPFetcher) Fetch(ctx context.Context, r Request) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, configErrorf("invalid url %q: %v", r.URL, err)
	}
	f.applyHeaders(req, r)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, r.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fetchError(r.URL, ReasonStatus, resp.StatusCode,
			fmt.Errorf("HTTP request returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classifyTransportError(ctx, r.URL, fmt.Errorf("failed to read response body: %w", err))
	}

	return &Document{
		URL:        r.URL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// applyHeaders applies headers to a request in the following order:
// 1. User agent and default headers
// 2. Forge tokens (api.github.com and the request's GitLab host only)
// 3. Request headers (can override everything above)
// All header values are processed for environment variable substitution.
func (f *HTTPFetcher) applyHeaders(req *http.Request, r Request) {
	req.Header.Set("User-Agent", f.userAgent)
	for key, value := range f.defaultHeaders {
		req.Header.Set(key, SubstituteEnvVars(value))
	}

	url := req.URL.String()
	if f.githubToken != "" && isGitHubAPIURL(url) {
		req.Header.Set("Authorization", "Bearer "+f.githubToken)
	}
	if f.gitlabToken != "" && r.GitLabHost != "" && strings.EqualFold(req.URL.Host, r.GitLabHost) {
		req.Header.Set("PRIVATE-TOKEN", f.gitlabToken)
	}

	for key, value := range r.Headers {
		req.Header.Set(key, SubstituteEnvVars(value))
	}
}

// classifyTransportError maps a transport failure to a fetch reason.
func classifyTransportError(ctx context.Context, url string, err error) *ResolutionError {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return fetchError(url, ReasonCancelled, 0, err)
	case isTimeoutError(err) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fetchError(url, ReasonTimeout, 0, err)
	default:
		return fetchError(url, ReasonNetwork, 0, err)
	}
}

// isTimeoutError checks if an error is a timeout error.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

// SubstituteEnvVars replaces ${VAR_NAME} patterns in a string with
// the corresponding environment variable values.
// If an environment variable is not set, the pattern is replaced with an empty string.
func SubstituteEnvVars(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// isGitHubAPIURL checks if a URL is a GitHub API URL.
func isGitHubAPIURL(url string) bool {
	return strings.HasPrefix(url, "https://api.github.com/") ||
		strings.HasPrefix(url, "http://api.github.com/")
}

// isGitLabAPIURL checks if a URL targets a GitLab REST v4 endpoint.
func isGitLabAPIURL(url string) bool {
	return strings.Contains(url, "/api/v4/projects/")
}
