package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/obentoo/tapcheck/internal/livecheck"
)

// ErrNotInActions is returned when neither GitHub Actions file is set.
var ErrNotInActions = errors.New("GITHUB_OUTPUT and GITHUB_STEP_SUMMARY are not set")

var outputKeyInvalid = regexp.MustCompile(`[^A-Za-z0-9_]`)

// GitHubActions appends step outputs and a job summary for a workflow run.
type GitHubActions struct {
	// OutputPath is the $GITHUB_OUTPUT file
	OutputPath string
	// SummaryPath is the $GITHUB_STEP_SUMMARY file
	SummaryPath string
}

// GitHubActionsFromEnv reads the file paths the runner provides.
func GitHubActionsFromEnv() GitHubActions {
	return GitHubActions{
		OutputPath:  os.Getenv("GITHUB_OUTPUT"),
		SummaryPath: os.Getenv("GITHUB_STEP_SUMMARY"),
	}
}

// Write appends outputs and the summary. Unset paths are skipped.
func (g GitHubActions) Write(results []livecheck.CheckResult) error {
	if g.OutputPath == "" && g.SummaryPath == "" {
		return ErrNotInActions
	}
	if g.OutputPath != "" {
		if err := appendTo(g.OutputPath, func(w io.Writer) error { return WriteOutputs(w, results) }); err != nil {
			return fmt.Errorf("writing step outputs: %w", err)
		}
	}
	if g.SummaryPath != "" {
		if err := appendTo(g.SummaryPath, func(w io.Writer) error { return WriteSummary(w, results) }); err != nil {
			return fmt.Errorf("writing step summary: %w", err)
		}
	}
	return nil
}

func appendTo(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// OutputKey turns a package name into a valid step output key prefix.
func OutputKey(name string) string {
	return outputKeyInvalid.ReplaceAllString(name, "_")
}

// WriteOutputs writes key=value step outputs. Each package gets
// <key>_needs_update, <key>_current_version, <key>_latest_version and
// <key>_new_version; the batch gets updates and updated_packages.
func WriteOutputs(w io.Writer, results []livecheck.CheckResult) error {
	for _, r := range results {
		key := OutputKey(r.Name)
		needsUpdate := r.Status == livecheck.StatusUpdateAvailable
		newVersion := ""
		if needsUpdate {
			newVersion = r.ResolvedVersion
		}
		lines := [][2]string{
			{"needs_update", strconv.FormatBool(needsUpdate)},
			{"current_version", singleLine(r.DeclaredVersion)},
			{"latest_version", singleLine(r.ResolvedVersion)},
			{"new_version", singleLine(newVersion)},
		}
		if r.Status == livecheck.StatusError {
			lines = append(lines, [2]string{"error", singleLine(r.ErrorDetail)})
		}
		for _, kv := range lines {
			if _, err := fmt.Fprintf(w, "%s_%s=%s\n", key, kv[0], kv[1]); err != nil {
				return err
			}
		}
	}

	s := Summarize(results)
	_, err := fmt.Fprintf(w, "updates=%d\nerrors=%d\nupdated_packages=%s\n",
		s.Updates, s.Errors, strings.Join(UpdatedNames(results), ","))
	return err
}

// WriteSummary writes a markdown table for the job summary page.
func WriteSummary(w io.Writer, results []livecheck.CheckResult) error {
	var b strings.Builder
	b.WriteString("# Livecheck Results\n\n")
	b.WriteString("| Package | Current | Latest | Status |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, r := range results {
		latest := r.ResolvedVersion
		status := "✅ Up-to-date"
		switch r.Status {
		case livecheck.StatusUpdateAvailable:
			status = "🔄 Update needed"
		case livecheck.StatusError:
			latest = "-"
			status = "❌ " + cell(r.ErrorDetail)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(r.Name), cell(r.DeclaredVersion), cell(latest), status)
	}

	s := Summarize(results)
	fmt.Fprintf(&b, "\n%d checked, %d update(s), %d error(s)\n\n", s.Total, s.Updates, s.Errors)

	_, err := io.WriteString(w, b.String())
	return err
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cell(s string) string {
	return strings.ReplaceAll(singleLine(s), "|", `\|`)
}
