// Package match implements the pure route matcher: mapping a pathname (plus
// an optional basename) to an ordered list of route.Match, root to leaf,
// over arbitrary multi-segment Route patterns with static/dynamic/optional/
// splat segments and a declared branch-ranking relation.
package match

import (
	"errors"
	"strings"
)

// Canonicalize normalizes a raw path for matching: it rejects backslashes
// and NUL bytes, ensures a leading slash, collapses repeated slashes, and
// trims a single trailing slash (root excepted) while reporting whether it
// changed anything, so the orchestrator can force a history REPLACE instead
// of PUSH when the canonical form differs from what was navigated to.
func Canonicalize(path string) (canon string, changed bool, err error) {
	if path == "" {
		return "/", true, nil
	}
	if strings.Contains(path, "\\") {
		return "", false, errors.New("match: path contains backslash")
	}
	if strings.Contains(path, "\x00") {
		return "", false, errors.New("match: path contains null byte")
	}

	original := path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	return path, path != original, nil
}

// StripBasename removes a configured basename prefix from pathname before
// matching. It requires an exact segment-boundary match (so basename "/app"
// strips from "/app/users" but not from "/application"); when it doesn't
// match at all, the caller treats an unknown basename as a factory-time
// failure.
func StripBasename(pathname, basename string) (stripped string, ok bool) {
	if basename == "" || basename == "/" {
		return pathname, true
	}
	basename = strings.TrimSuffix(basename, "/")
	if pathname == basename {
		return "/", true
	}
	if strings.HasPrefix(pathname, basename+"/") {
		return pathname[len(basename):], true
	}
	return "", false
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
