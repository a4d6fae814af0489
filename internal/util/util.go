package util

import (
	"net/url"
	"regexp"
	"strings"
)

var regionTagRegexp = regexp.MustCompile(`\(([^)]+)\)`)

// RelPath returns the decoded path of fileURL relative to baseURL,
// without leading or trailing separators.
func RelPath(fileURL, baseURL string) string {
	relPath := strings.Replace(fileURL, baseURL, "", 1)

	if decoded, err := url.PathUnescape(relPath); err == nil {
		relPath = decoded
	}

	return strings.Trim(relPath, "/")
}

// LastSegment returns the final path segment of a URL.
func LastSegment(rawURL string) string {
	if idx := strings.LastIndex(rawURL, "/"); idx >= 0 {
		return rawURL[idx+1:]
	}

	return rawURL
}

// RegionTag extracts the first parenthesized group of a filename, the
// conventional region position in No-Intro/Redump archive naming.
func RegionTag(filename string) (string, bool) {
	m := regionTagRegexp.FindStringSubmatch(filename)
	if m == nil {
		return "", false
	}

	return m[1], true
}
