package update

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// parseVersion parses a release tag, tolerating a leading "v" and
// surrounding whitespace.
func parseVersion(tag string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(tag), "v"))
}

// tagsMatch compares release tags ignoring the leading "v".
func tagsMatch(a, b string) bool {
	na := strings.TrimPrefix(strings.TrimSpace(a), "v")
	nb := strings.TrimPrefix(strings.TrimSpace(b), "v")
	return na == nb
}
