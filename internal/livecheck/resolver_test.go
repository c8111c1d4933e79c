package livecheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// fetchSpy serves a fixed body and counts fetches.
type fetchSpy struct {
	body  string
	calls int32
	last  Request
}

func (s *fetchSpy) Fetch(_ context.Context, req Request) (*Document, error) {
	atomic.AddInt32(&s.calls, 1)
	s.last = req
	return &Document{URL: req.URL, FinalURL: req.URL, StatusCode: http.StatusOK, Body: []byte(s.body)}, nil
}

func (s *fetchSpy) count() int {
	return int(atomic.LoadInt32(&s.calls))
}

func resolveWith(t *testing.T, body string, desc PackageDescriptor, src Source) (ResolvedVersion, error) {
	t.Helper()
	spy := &fetchSpy{body: body}
	return NewResolver(spy).Resolve(context.Background(), desc, src)
}

func wantKind(t *testing.T, err error, kind ErrorKind) *ResolutionError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil error", kind)
	}
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected *ResolutionError, got %T: %v", err, err)
	}
	if re.Kind != kind {
		t.Fatalf("expected %s, got %s: %v", kind, re.Kind, err)
	}
	return re
}

// =============================================================================
// Property-Based Tests
// =============================================================================

func genResolvedVersion() gopter.Gen {
	return gen.RegexMatch(`^[0-9]{1,3}\.[0-9]{1,3}(\.[0-9]{1,3})?$`)
}

func TestResolvePatternMatchProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	src := Source{Kind: PatternMatch, URL: "https://example.com/releases", Regex: `<span>([^<]*)</span>`}
	desc := PackageDescriptor{Name: "pkg", DeclaredVersion: "0.0.1"}

	properties.Property("single match is trimmed and v-stripped", prop.ForAll(
		func(version string, prefix string) bool {
			body := fmt.Sprintf("<p>header</p><span>  %s%s \n</span><p>footer</p>", prefix, version)
			v, err := resolveWith(t, body, desc, src)
			if err != nil {
				t.Logf("Resolve failed: %v", err)
				return false
			}
			return v.Value == version
		},
		genResolvedVersion(),
		gen.OneConstOf("", "v", "V"),
	))

	properties.Property("resolving the same document twice is identical", prop.ForAll(
		func(version string) bool {
			body := "<span>v" + version + "</span>"
			first, err1 := resolveWith(t, body, desc, src)
			second, err2 := resolveWith(t, body, desc, src)
			return err1 == nil && err2 == nil && first == second
		},
		genResolvedVersion(),
	))

	properties.TestingRun(t)
}

// =============================================================================
// Unit Tests - configuration errors
// =============================================================================

func TestResolveZeroCaptureGroupsNeverFetches(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"pattern match", Source{Kind: PatternMatch, URL: "https://example.com", Regex: `v\d+\.\d+`}},
		{"structured with regex", Source{Kind: StructuredEndpoint, URL: "https://example.com", Path: "version", Regex: `Foo-[0-9.]+`, RegexField: "url"}},
		{"github latest", Source{Kind: DirectURL, Strategy: StrategyGitHubLatest, URL: "https://github.com/o/r", Regex: `^v\d+$`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &fetchSpy{body: "v1.0"}
			_, err := NewResolver(spy).Resolve(context.Background(), PackageDescriptor{Name: "p"}, tt.src)
			wantKind(t, err, KindConfig)
			if !errors.Is(err, ErrConfig) || !errors.Is(err, ErrNoCaptureGroup) {
				t.Errorf("expected ErrConfig wrapping ErrNoCaptureGroup, got %v", err)
			}
			if spy.count() != 0 {
				t.Errorf("expected no fetch, got %d", spy.count())
			}
		})
	}
}

func TestResolveConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		desc PackageDescriptor
		src  Source
	}{
		{"missing url", PackageDescriptor{}, Source{Kind: PatternMatch, Regex: `(x)`}},
		{"invalid regex", PackageDescriptor{}, Source{Kind: PatternMatch, URL: "https://e.com", Regex: `(x`}},
		{"json without path", PackageDescriptor{}, Source{Kind: StructuredEndpoint, URL: "https://e.com"}},
		{"regex without field", PackageDescriptor{}, Source{Kind: StructuredEndpoint, URL: "https://e.com", Path: "v", Regex: `(x)`}},
		{"bad json path", PackageDescriptor{}, Source{Kind: StructuredEndpoint, URL: "https://e.com", Path: "a[x]"}},
		{"strategy of another kind", PackageDescriptor{}, Source{Kind: PatternMatch, Strategy: StrategyJSON, URL: "https://e.com", Regex: `(x)`}},
		{"unknown listing", PackageDescriptor{}, Source{Kind: PatternMatch, URL: "https://e.com", Regex: `(x)`, Listing: "random"}},
		{"selector and xpath", PackageDescriptor{}, Source{Kind: PatternMatch, URL: "https://e.com", Regex: `(x)`, Selector: "li", XPath: "//li"}},
		{"invalid selector", PackageDescriptor{}, Source{Kind: PatternMatch, URL: "https://e.com", Regex: `(x)`, Selector: "li["}},
		{"selector on json", PackageDescriptor{}, Source{Kind: StructuredEndpoint, URL: "https://e.com", Path: "v", Selector: "li"}},
		{":url without template", PackageDescriptor{DeclaredVersion: "1"}, Source{Kind: DirectURL, URL: URLFromDownload}},
		{"github strategy on other host", PackageDescriptor{}, Source{Kind: DirectURL, Strategy: StrategyGitHubLatest, URL: "https://example.com/o/r"}},
		{"unknown kind", PackageDescriptor{}, Source{URL: "https://e.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &fetchSpy{}
			_, err := NewResolver(spy).Resolve(context.Background(), tt.desc, tt.src)
			wantKind(t, err, KindConfig)
			if spy.count() != 0 {
				t.Errorf("expected no fetch, got %d", spy.count())
			}
		})
	}
}

// =============================================================================
// Unit Tests - StructuredEndpoint
// =============================================================================

func TestResolveStructuredRegexConfirmsPrimary(t *testing.T) {
	body := `{"version":"1.2.3","url":"https://example.com/dl/Foo-1.2.3-x86_64.AppImage"}`
	src := Source{
		Kind:       StructuredEndpoint,
		URL:        "https://example.com/api",
		Path:       "version",
		Regex:      `Foo[_-]([0-9.]+)-x86_64`,
		RegexField: "url",
	}

	v, err := resolveWith(t, body, PackageDescriptor{Name: "foo", DeclaredVersion: "1.2.2"}, src)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Value != "1.2.3" {
		t.Errorf("expected 1.2.3, got %q", v.Value)
	}
}

func TestResolveStructuredCompound(t *testing.T) {
	body := `{"version":"2.3.41","url":"https://downloads.cursor.com/production/ab12cd34/linux/x64/Cursor-2.3.41-x86_64.AppImage"}`
	src := Source{
		Kind:       StructuredEndpoint,
		Strategy:   StrategyJSON,
		URL:        "https://api2.cursor.sh/updates",
		Path:       "version",
		Regex:      `(?i)/production/([0-9a-fA-F]+)/linux/x64/Cursor[._-]([0-9.]+)[._-]x86_64\.AppImage`,
		RegexField: "url",
	}
	desc := PackageDescriptor{Name: "cursor-linux", DeclaredVersion: "2.3.40,230922a1"}

	v, err := resolveWith(t, body, desc, src)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Value != "2.3.41,ab12cd34" {
		t.Errorf("expected compound 2.3.41,ab12cd34, got %q", v.Value)
	}
}

func TestResolveStructuredRegexFieldMismatch(t *testing.T) {
	body := `{"version":"1.2.3","url":"https://example.com/other.tar.gz"}`
	src := Source{Kind: StructuredEndpoint, URL: "https://e.com", Path: "version", Regex: `Foo-([0-9.]+)`, RegexField: "url"}

	_, err := resolveWith(t, body, PackageDescriptor{Name: "foo"}, src)
	wantKind(t, err, KindNoMatch)
}

func TestResolveStructuredSecondaryCaptureDisagrees(t *testing.T) {
	body := `{"version":"1.2.4","url":"https://example.com/dl/Foo-1.2.3-x86_64.AppImage"}`
	src := Source{Kind: StructuredEndpoint, URL: "https://e.com", Path: "version", Regex: `Foo[_-]([0-9.]+)-x86_64`, RegexField: "url"}

	_, err := resolveWith(t, body, PackageDescriptor{Name: "foo", DeclaredVersion: "1.2.2"}, src)
	re := wantKind(t, err, KindNoMatch)
	if !errors.Is(re, ErrRegexNoMatch) {
		t.Errorf("expected ErrRegexNoMatch, got %v", re)
	}
}

func TestResolveRejectsMultilineVersion(t *testing.T) {
	src := Source{Kind: StructuredEndpoint, URL: "https://e.com", Path: "version"}

	for _, body := range []string{
		`{"version":"1.0.1\nupdated_packages=pwned"}`,
		`{"version":"1.0.1\rx"}`,
		`{"version":"1.0 beta"}`,
		`{"version":"1.0\u0000"}`,
	} {
		_, err := resolveWith(t, body, PackageDescriptor{Name: "zed-linux"}, src)
		wantKind(t, err, KindNoMatch)
	}
}

func TestResolveStructuredErrors(t *testing.T) {
	src := Source{Kind: StructuredEndpoint, URL: "https://e.com", Path: "data.releases[0].tag"}

	tests := []struct {
		name string
		body string
		want ErrorKind
	}{
		{"malformed document", `{"data": [`, KindDecode},
		{"html instead of json", `<html></html>`, KindDecode},
		{"missing field", `{"data":{"releases":[]}}`, KindNoMatch},
		{"object instead of scalar", `{"data":{"releases":[{"tag":{"name":"x"}}]}}`, KindNoMatch},
		{"null field", `{"data":{"releases":[{"tag":null}]}}`, KindNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveWith(t, tt.body, PackageDescriptor{Name: "p"}, src)
			wantKind(t, err, tt.want)
		})
	}
}

func TestResolveStructuredNestedAndNumeric(t *testing.T) {
	src := Source{Kind: StructuredEndpoint, URL: "https://e.com", Path: "data.releases[1].tag"}
	v, err := resolveWith(t, `{"data":{"releases":[{"tag":"v9"},{"tag":"v2.0.1"}]}}`, PackageDescriptor{Name: "p"}, src)
	if err != nil || v.Value != "2.0.1" || v.RawMatch != "v2.0.1" {
		t.Errorf("got %+v, %v", v, err)
	}

	src.Path = "build"
	v, err = resolveWith(t, `{"build": 1024}`, PackageDescriptor{Name: "p"}, src)
	if err != nil || v.Value != "1024" {
		t.Errorf("numeric field: got %+v, %v", v, err)
	}
}

// =============================================================================
// Unit Tests - PatternMatch
// =============================================================================

func TestResolvePatternMatchListing(t *testing.T) {
	body := `<ul><li>Release v2.0.0</li><li>Release v1.9.0</li></ul>`
	tests := []struct {
		listing Listing
		want    string
	}{
		{"", "2.0.0"},
		{ListingFirst, "2.0.0"},
		{ListingNewestFirst, "2.0.0"},
		{ListingNewestLast, "1.9.0"},
	}

	for _, tt := range tests {
		t.Run(string(tt.listing), func(t *testing.T) {
			src := Source{Kind: PatternMatch, URL: "https://e.com/tags", Regex: `v(\d+\.\d+\.\d+)`, Listing: tt.listing}
			v, err := resolveWith(t, body, PackageDescriptor{Name: "p"}, src)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if v.Value != tt.want {
				t.Errorf("expected %s, got %s", tt.want, v.Value)
			}
		})
	}
}

func TestResolvePatternMatchNoMatch(t *testing.T) {
	src := Source{Kind: PatternMatch, URL: "https://e.com", Regex: `version-(\d+)`}
	_, err := resolveWith(t, "nothing to see here", PackageDescriptor{Name: "p"}, src)
	wantKind(t, err, KindNoMatch)
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
}

func TestResolvePatternMatchEmptyCapture(t *testing.T) {
	src := Source{Kind: PatternMatch, URL: "https://e.com", Regex: `ver=(\d*);`}
	_, err := resolveWith(t, "ver=;", PackageDescriptor{Name: "p"}, src)
	wantKind(t, err, KindNoMatch)

	_, err = resolveWith(t, "<b>   </b>", PackageDescriptor{Name: "p"}, Source{Kind: PatternMatch, URL: "https://e.com", Regex: `<b>([^<]*)</b>`})
	wantKind(t, err, KindNoMatch)
}

func TestResolvePatternMatchHTML(t *testing.T) {
	body := `<html><body>
<div class="notes">v9.9.9 is mentioned in notes</div>
<ul>
<li class="release">v3.1.0</li>
<li class="release">v3.0.0</li>
</ul>
</body></html>`

	t.Run("css selector", func(t *testing.T) {
		src := Source{Kind: PatternMatch, URL: "https://e.com", Selector: "li.release", Regex: `v([\d.]+)`}
		v, err := resolveWith(t, body, PackageDescriptor{Name: "p"}, src)
		if err != nil || v.Value != "3.1.0" {
			t.Errorf("got %+v, %v", v, err)
		}
	})

	t.Run("xpath newest last", func(t *testing.T) {
		src := Source{Kind: PatternMatch, URL: "https://e.com", XPath: `//li[@class='release']`, Regex: `v([\d.]+)`, Listing: ListingNewestLast}
		v, err := resolveWith(t, body, PackageDescriptor{Name: "p"}, src)
		if err != nil || v.Value != "3.0.0" {
			t.Errorf("got %+v, %v", v, err)
		}
	})

	t.Run("no element", func(t *testing.T) {
		src := Source{Kind: PatternMatch, URL: "https://e.com", Selector: "table", Regex: `v([\d.]+)`}
		_, err := resolveWith(t, body, PackageDescriptor{Name: "p"}, src)
		wantKind(t, err, KindNoMatch)
		if !errors.Is(err, ErrNoElementFound) {
			t.Errorf("expected ErrNoElementFound, got %v", err)
		}
	})
}

// =============================================================================
// Unit Tests - DirectURL over HTTP
// =============================================================================

func newTestResolver(server *httptest.Server, opts ...ResolverOption) *Resolver {
	fetcher := NewHTTPFetcher(WithHTTPClient(server.Client()), WithGitLabToken("gl-secret"))
	opts = append([]ResolverOption{WithGitHubAPI(server.URL)}, opts...)
	return NewResolver(fetcher, opts...)
}

func TestResolveGitHubLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/zen-browser/desktop/releases/latest" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Accept") != "application/vnd.github+json" {
			t.Errorf("unexpected Accept header %q", r.Header.Get("Accept"))
		}
		fmt.Fprint(w, `{"tag_name":"1.16.0b","name":"Release build"}`)
	}))
	defer server.Close()

	desc := PackageDescriptor{
		Name:                "zen-browser-linux",
		DeclaredVersion:     "1.15.5b",
		DownloadURLTemplate: "https://github.com/zen-browser/desktop/releases/download/{{.Version}}/zen.linux-x86_64.tar.xz",
	}
	src := Source{Kind: DirectURL, Strategy: StrategyGitHubLatest, URL: URLFromDownload, Regex: `(?i)^v?(\d+(?:\.\d+)+b?)$`}

	v, err := newTestResolver(server).Resolve(context.Background(), desc, src)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Value != "1.16.0b" {
		t.Errorf("expected 1.16.0b, got %q", v.Value)
	}
}

func TestResolveGitHubReleasesSkipsPrereleases(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/zed-industries/zed/releases" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `[
			{"tag_name":"v0.209.0-pre","prerelease":true},
			{"tag_name":"v0.208.9","draft":true},
			{"tag_name":"v0.208.4","prerelease":false},
			{"tag_name":"v0.207.4"}
		]`)
	}))
	defer server.Close()

	src := Source{Kind: DirectURL, Strategy: StrategyGitHubReleases, URL: "https://github.com/zed-industries/zed/releases"}
	r := newTestResolver(server)

	v, err := r.Resolve(context.Background(), PackageDescriptor{Name: "zed-linux"}, src)
	if err != nil || v.Value != "0.208.4" {
		t.Errorf("got %+v, %v", v, err)
	}

	src.Listing = ListingNewestLast
	v, err = r.Resolve(context.Background(), PackageDescriptor{Name: "zed-linux"}, src)
	if err != nil || v.Value != "0.207.4" {
		t.Errorf("newest_last: got %+v, %v", v, err)
	}
}

func TestResolveGitHubReleasesNotAList(t *testing.T) {
	src := Source{Kind: DirectURL, Strategy: StrategyGitHubReleases, URL: "https://github.com/o/r"}
	_, err := resolveWith(t, `{"message":"Not Found"}`, PackageDescriptor{Name: "p"}, src)
	wantKind(t, err, KindDecode)
}

func TestResolveGitLabLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.EscapedPath(), "/api/v4/projects/GNOME%2Ffoundry/releases/permalink/latest") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("PRIVATE-TOKEN") != "gl-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"tag_name":"v1.1.0"}`)
	}))
	defer server.Close()

	src := Source{Kind: DirectURL, Strategy: StrategyGitLabLatest, URL: server.URL + "/GNOME/foundry.git"}
	v, err := newTestResolver(server).Resolve(context.Background(), PackageDescriptor{Name: "foundry", DeclaredVersion: "1.0.0"}, src)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Value != "1.1.0" || v.RawMatch != "v1.1.0" {
		t.Errorf("got %+v", v)
	}
}

func TestResolveGitLabTokenOnlyForProjectHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := r.Header.Get("PRIVATE-TOKEN"); tok != "" {
			t.Errorf("json source received PRIVATE-TOKEN %q", tok)
		}
		fmt.Fprint(w, `{"version":"2.0.0"}`)
	}))
	defer server.Close()

	src := Source{Kind: StructuredEndpoint, URL: server.URL + "/evil/api/v4/projects/x", Path: "version"}
	v, err := newTestResolver(server).Resolve(context.Background(), PackageDescriptor{Name: "p"}, src)
	if err != nil || v.Value != "2.0.0" {
		t.Errorf("got %+v, %v", v, err)
	}
}

func TestResolveRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/releases/tag/v1.4.2", http.StatusFound)
	})
	mux.HandleFunc("/releases/tag/v1.4.2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "release page")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := newTestResolver(server)

	v, err := r.Resolve(context.Background(), PackageDescriptor{Name: "p"}, Source{Kind: DirectURL, URL: server.URL + "/latest"})
	if err != nil || v.Value != "1.4.2" {
		t.Errorf("last segment: got %+v, %v", v, err)
	}

	src := Source{Kind: DirectURL, Strategy: StrategyRedirect, URL: server.URL + "/latest", Regex: `tag/v([\d.]+)`}
	v, err = r.Resolve(context.Background(), PackageDescriptor{Name: "p"}, src)
	if err != nil || v.Value != "1.4.2" {
		t.Errorf("regex: got %+v, %v", v, err)
	}
}

// =============================================================================
// Unit Tests - fetch failures
// =============================================================================

func TestResolveHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			src := Source{Kind: PatternMatch, URL: server.URL, Regex: `(\d+)`}
			_, err := newTestResolver(server).Resolve(context.Background(), PackageDescriptor{Name: "p"}, src)
			re := wantKind(t, err, KindFetch)
			if re.Reason != ReasonStatus || re.StatusCode != tt.status {
				t.Errorf("expected http_status %d, got %s %d", tt.status, re.Reason, re.StatusCode)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func slowServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
}

func TestResolveTimeout(t *testing.T) {
	server := slowServer()
	defer server.Close()

	src := Source{Kind: PatternMatch, URL: server.URL, Regex: `(\d+)`}
	start := time.Now()
	_, err := newTestResolver(server, WithTimeout(50*time.Millisecond)).Resolve(context.Background(), PackageDescriptor{Name: "p"}, src)
	re := wantKind(t, err, KindFetch)
	if re.Reason != ReasonTimeout {
		t.Errorf("expected timeout reason, got %q", re.Reason)
	}
	if !IsRetryable(err) {
		t.Error("timeouts should be retryable")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout not honored, took %v", elapsed)
	}
}

func TestResolveCancelled(t *testing.T) {
	server := slowServer()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := Source{Kind: PatternMatch, URL: server.URL, Regex: `(\d+)`}
	_, err := newTestResolver(server).Resolve(ctx, PackageDescriptor{Name: "p"}, src)
	re := wantKind(t, err, KindFetch)
	if re.Reason != ReasonCancelled {
		t.Errorf("expected cancelled reason, got %q", re.Reason)
	}
	if IsRetryable(err) {
		t.Error("cancellation must not be retryable")
	}
}

func TestResolveFetchesExactlyOnce(t *testing.T) {
	spy := &fetchSpy{body: `{"version":"3.0"}`}
	src := Source{Kind: StructuredEndpoint, URL: "https://e.com/v.json", Path: "version", Headers: map[string]string{"X-Test": "1"}}

	if _, err := NewResolver(spy).Resolve(context.Background(), PackageDescriptor{Name: "p"}, src); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if spy.count() != 1 {
		t.Errorf("expected exactly one fetch, got %d", spy.count())
	}
	if spy.last.Headers["X-Test"] != "1" || spy.last.Headers["Accept"] != "application/json" {
		t.Errorf("unexpected headers %v", spy.last.Headers)
	}
}

func TestResolveDoesNotMutateDescriptor(t *testing.T) {
	desc := PackageDescriptor{Name: "p", DeclaredVersion: "1.0.0", DownloadURLTemplate: "https://e.com/{{.Version}}"}
	before := desc
	src := Source{Kind: PatternMatch, URL: URLFromDownload, Regex: `(\d+\.\d+\.\d+)`}

	spy := &fetchSpy{body: "2.0.0"}
	v, err := NewResolver(spy).Resolve(context.Background(), desc, src)
	if err != nil || v.Value != "2.0.0" {
		t.Fatalf("got %+v, %v", v, err)
	}
	if desc != before {
		t.Errorf("descriptor changed: %+v", desc)
	}
	if spy.last.URL != "https://e.com/1.0.0" {
		t.Errorf("expected rendered :url, got %s", spy.last.URL)
	}
}
