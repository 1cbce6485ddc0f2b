// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package crawler

import (
	"path"
	"strings"
)

// MatchGlob matches a slash-separated relative path against a pattern
// supporting *, ?, character classes, and ** across separators. A
// pattern without a leading "**/" also matches at any depth, so
// "node_modules" prunes every node_modules directory in the tree.
func MatchGlob(pattern, rel string) bool {
	pattern = strings.TrimPrefix(path.Clean("/"+pattern), "/")
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")

	if matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/")) {
		return true
	}
	// Implicit any-depth prefix for bare patterns.
	if !strings.HasPrefix(pattern, "**") {
		return matchSegments(append([]string{"**"}, strings.Split(pattern, "/")...), strings.Split(rel, "/"))
	}
	return false
}

// matchSegments matches pattern segments against path segments, where a
// "**" segment spans zero or more path segments.
func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}
	if pat[0] == "**" {
		if len(pat) == 1 {
			return true
		}
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pat[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}

// matchAny reports whether rel matches any of the patterns.
func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if MatchGlob(p, rel) {
			return true
		}
	}
	return false
}
