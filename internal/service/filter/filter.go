package filter

import (
	"net/url"
	"strings"

	"github.com/jgivc/treemirror/internal/util"
)

// Apply narrows a leaf URL set to the URLs whose filename region tag
// matches any of the wanted regions. Matching is case-insensitive and
// substring-based on the first parenthesized group only; a filename
// without such a group never matches. With no regions configured the
// input set is returned unchanged.
func Apply(urls map[string]struct{}, regions []string) map[string]struct{} {
	if len(regions) == 0 {
		return urls
	}

	wanted := make([]string, 0, len(regions))
	for _, r := range regions {
		wanted = append(wanted, strings.ToLower(r))
	}

	matched := make(map[string]struct{})

	for u := range urls {
		name := util.LastSegment(u)
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}

		tag, ok := util.RegionTag(name)
		if !ok {
			continue
		}
		tag = strings.ToLower(tag)

		for _, w := range wanted {
			if strings.Contains(tag, w) {
				matched[u] = struct{}{}

				break
			}
		}
	}

	return matched
}
