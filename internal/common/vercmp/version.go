// Package vercmp orders upstream version strings as they appear in cask
// manifests: dotted numbers with optional pre-release suffixes, "+build"
// counters and comma-separated auxiliary components.
package vercmp

import (
	"regexp"
	"strconv"
	"strings"
)

// Version suffix priorities (lower = earlier in release cycle)
var suffixPriority = map[string]int{
	"alpha": -4,
	"beta":  -3,
	"pre":   -2,
	"rc":    -1,
	"":      0, // release version
	"p":     1, // patch
}

// suffixRegex matches suffixes like -rc1, _beta2, .alpha, -p1
var suffixRegex = regexp.MustCompile(`(?i)[-_.]?(alpha|beta|pre|rc|p)\.?(\d*)$`)

// leadingDigits splits "15b" into "15" and "b"
var leadingDigits = regexp.MustCompile(`^(\d*)(.*)$`)

type parsed struct {
	nums      []int
	letters   []string
	suffix    string
	suffixNum int
	build     int
}

// parse breaks a version string into components for comparison.
// Only the first comma-separated component takes part in ordering.
func parse(v string) parsed {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	if i := strings.Index(v, ","); i >= 0 {
		v = v[:i]
	}

	var p parsed

	// Extract build counter first (+1, +2, ...)
	if i := strings.Index(v, "+"); i >= 0 {
		p.build, _ = strconv.Atoi(v[i+1:])
		v = v[:i]
	}

	if m := suffixRegex.FindStringSubmatch(v); m != nil && len(m[0]) < len(v) {
		p.suffix = strings.ToLower(m[1])
		if m[2] != "" {
			p.suffixNum, _ = strconv.Atoi(m[2])
		}
		v = v[:len(v)-len(m[0])]
	}

	for _, part := range strings.Split(v, ".") {
		m := leadingDigits.FindStringSubmatch(part)
		n, _ := strconv.Atoi(m[1])
		p.nums = append(p.nums, n)
		p.letters = append(p.letters, strings.ToLower(m[2]))
	}

	return p
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Compare compares two version strings.
// Returns: -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func Compare(v1, v2 string) int {
	p1, p2 := parse(v1), parse(v2)

	maxLen := max(len(p1.nums), len(p2.nums))
	for i := 0; i < maxLen; i++ {
		var a, b int
		var la, lb string
		if i < len(p1.nums) {
			a, la = p1.nums[i], p1.letters[i]
		}
		if i < len(p2.nums) {
			b, lb = p2.nums[i], p2.letters[i]
		}
		if c := compareInts(a, b); c != 0 {
			return c
		}
		if c := strings.Compare(la, lb); c != 0 {
			return c
		}
	}

	// alpha < beta < pre < rc < release < p
	if c := compareInts(suffixPriority[p1.suffix], suffixPriority[p2.suffix]); c != 0 {
		return c
	}
	if c := compareInts(p1.suffixNum, p2.suffixNum); c != 0 {
		return c
	}

	return compareInts(p1.build, p2.build)
}

// Newer reports whether candidate orders strictly after current.
func Newer(candidate, current string) bool {
	return Compare(candidate, current) > 0
}
