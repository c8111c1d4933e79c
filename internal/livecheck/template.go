package livecheck

import (
	"fmt"
	"strings"
	"text/template"
)

// downloadFuncs are available in download URL templates.
//
//	{{.Version}}  the declared version
//	{{csv 0}}     the first comma-separated component of the version
//	{{base}}      the version without its "+build" suffix
func downloadFuncs(version string) template.FuncMap {
	return template.FuncMap{
		"csv": func(i int) (string, error) {
			parts := strings.Split(version, ",")
			if i < 0 || i >= len(parts) {
				return "", fmt.Errorf("version %q has no component %d", version, i)
			}
			return parts[i], nil
		},
		"base": func() string {
			base, _, _ := strings.Cut(version, "+")
			return base
		},
	}
}

// RenderDownloadURL expands a download URL template for version.
func RenderDownloadURL(tmpl, version string) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return "", fmt.Errorf("empty download url template")
	}
	t, err := template.New("download_url").
		Option("missingkey=error").
		Funcs(downloadFuncs(version)).
		Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse download url template: %w", err)
	}

	var b strings.Builder
	if err := t.Execute(&b, struct{ Version string }{version}); err != nil {
		return "", fmt.Errorf("render download url template: %w", err)
	}
	return b.String(), nil
}
