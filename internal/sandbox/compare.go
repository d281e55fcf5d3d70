package sandbox

import "strings"

// TokensEqual compares two outputs token-wise, ignoring all whitespace
// layout. This mirrors the comparison the in-container harness applies, and
// is used host-side for ad-hoc runs against an expected output.
func TokensEqual(got, want string) bool {
	g := strings.Fields(got)
	w := strings.Fields(want)
	if len(g) != len(w) {
		return false
	}
	for i := range g {
		if g[i] != w[i] {
			return false
		}
	}
	return true
}
