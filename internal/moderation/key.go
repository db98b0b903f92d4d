package moderation

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ContentKey hashes trimmed content (case preserved) together with the sorted
// media references. The hash is not cryptographic; collisions only cost a
// stale cache hit.
func ContentKey(content string, mediaRefs []string) string {
	d := xxhash.New()
	_, _ = d.WriteString(strings.TrimSpace(content))
	if len(mediaRefs) > 0 {
		refs := append([]string(nil), mediaRefs...)
		sort.Strings(refs)
		for _, r := range refs {
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(strings.TrimSpace(r))
		}
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
