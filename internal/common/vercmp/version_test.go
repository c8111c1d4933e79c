package vercmp

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		v1, v2 string
		want   int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"0.207.4", "0.208.4", -1},
		{"1.10", "1.9", 1},
		{"1.0", "1.0.0", 0},
		{"v2.0.0", "2.0.0", 0},
		{"1.0.0-rc1", "1.0.0", -1},
		{"1.0.0-beta.2", "1.0.0-beta.1", 1},
		{"1.0.0_alpha", "1.0.0-beta", -1},
		{"1.0.0-p1", "1.0.0", 1},
		{"1.2.0+1", "1.2.0+2", -1},
		{"1.2.1+1", "1.2.0+9", 1},
		{"1.15.5b", "1.15.5", 1},
		{"1.15.6b", "1.15.5b", 1},
		{"2.3.40,230922a1", "2.3.40,ffffffff", 0},
		{"2.3.41,0000", "2.3.40,ffff", 1},
		{"0.5.5.2", "0.5.5.10", -1},
	}

	for _, tt := range tests {
		t.Run(tt.v1+"_vs_"+tt.v2, func(t *testing.T) {
			if got := Compare(tt.v1, tt.v2); got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.v1, tt.v2, got, tt.want)
			}
		})
	}
}

func TestNewer(t *testing.T) {
	if !Newer("1.0.1", "1.0.0") {
		t.Error("1.0.1 should be newer than 1.0.0")
	}
	if Newer("1.0.0", "1.0.0") {
		t.Error("equal versions are not newer")
	}
}

func genVersion() gopter.Gen {
	return gen.RegexMatch(`^[0-9]{1,3}\.[0-9]{1,3}(\.[0-9]{1,3})?$`)
}

func TestCompareProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Compare is antisymmetric", prop.ForAll(
		func(a, b string) bool {
			return Compare(a, b) == -Compare(b, a)
		},
		genVersion(),
		genVersion(),
	))

	properties.Property("Compare is reflexive", prop.ForAll(
		func(a string) bool {
			return Compare(a, a) == 0
		},
		genVersion(),
	))

	properties.Property("leading v does not change ordering", prop.ForAll(
		func(a string) bool {
			return Compare("v"+a, a) == 0
		},
		genVersion(),
	))

	properties.TestingRun(t)
}
