// Package report renders check results for terminals, machines and
// GitHub Actions workflows.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/obentoo/tapcheck/internal/common/output"
	"github.com/obentoo/tapcheck/internal/livecheck"
)

// Summary counts results by status.
type Summary struct {
	Total    int
	UpToDate int
	Updates  int
	Errors   int
	Cached   int
}

// Summarize counts results by status.
func Summarize(results []livecheck.CheckResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case livecheck.StatusUpToDate:
			s.UpToDate++
		case livecheck.StatusUpdateAvailable:
			s.Updates++
		case livecheck.StatusError:
			s.Errors++
		}
		if r.FromCache {
			s.Cached++
		}
	}
	return s
}

// UpdatedNames returns the names of packages with an update, in result order.
func UpdatedNames(results []livecheck.CheckResult) []string {
	var names []string
	for _, r := range results {
		if r.Status == livecheck.StatusUpdateAvailable {
			names = append(names, r.Name)
		}
	}
	return names
}

// TextOptions tunes the text report.
type TextOptions struct {
	// ShowURLs prints the rendered download URL under each update
	ShowURLs bool
}

// WriteText writes a colored, human-readable report.
func WriteText(w io.Writer, results []livecheck.CheckResult, opts TextOptions) {
	if len(results) == 0 {
		output.Fprintf(w, output.Dim, "No packages to check\n")
		return
	}

	fmt.Fprintln(w)
	output.Fprintf(w, output.Header, "Version Check Results\n")
	fmt.Fprintln(w)

	for _, r := range results {
		cached := ""
		if r.FromCache {
			cached = output.Sprintf(output.Dim, " (cached)")
		}

		c := output.StatusColor(string(r.Status))
		switch r.Status {
		case livecheck.StatusError:
			output.Fprintf(w, c, "  %s: %s\n", r.Name, r.ErrorDetail)
		case livecheck.StatusUpdateAvailable:
			output.Fprintf(w, c, "  %s: %s → %s", r.Name, r.DeclaredVersion, r.ResolvedVersion)
			fmt.Fprintf(w, "%s\n", cached)
			if opts.ShowURLs && r.DownloadURL != "" {
				output.Fprintf(w, output.Dim, "    %s\n", r.DownloadURL)
			}
		default:
			output.Fprintf(w, c, "  %s: %s (up to date)", r.Name, r.DeclaredVersion)
			fmt.Fprintf(w, "%s\n", cached)
		}
	}

	s := Summarize(results)
	fmt.Fprintln(w)
	if s.Updates > 0 {
		output.Fprintf(w, output.Info, "Found %d update(s) available\n", s.Updates)
	} else if s.Errors == 0 {
		output.Fprintf(w, output.Success, "All packages are up to date\n")
	}
	if s.Errors > 0 {
		output.Fprintf(w, output.Warning, "%d package(s) had errors\n", s.Errors)
	}
}

// WriteJSON writes results as an indented JSON array.
func WriteJSON(w io.Writer, results []livecheck.CheckResult) error {
	if results == nil {
		results = []livecheck.CheckResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
