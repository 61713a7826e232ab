// Package querycache is the client-side cache that mediates every read
// between the application and the backend. It serves fresh data without a
// network call, serves stale data while revalidating in the background,
// deduplicates concurrent fetches for the same key, and supports bulk
// invalidation by hierarchical key prefix. Cached data lives only in memory;
// nothing here survives a process restart.
package querycache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a cached server resource. It is an ordered sequence of
// segments — strings, numbers, or string-map parameter objects — forming a
// hierarchical namespace, e.g. {"tickets", "list", map[string]string{"status": "open"}}.
// A key descends from a prefix when its leading segments are structurally
// equal to the prefix. Prefix matching is the sole mechanism for bulk
// invalidation.
type Key []any

// segmentSeparator joins canonical segments into a map key. JSON encoding
// escapes control characters, so a raw unit separator can never appear
// inside a segment and the join is unambiguous.
const segmentSeparator = "\x1f"

// canonicalize encodes each segment to a stable string form. encoding/json
// sorts map keys, so parameter objects compare structurally regardless of
// construction order.
func canonicalize(k Key) ([]string, error) {
	segs := make([]string, len(k))

	for i, seg := range k {
		b, err := json.Marshal(seg)
		if err != nil {
			return nil, fmt.Errorf("querycache: encoding key segment %d of %v: %w", i, k, err)
		}

		segs[i] = string(b)
	}

	return segs, nil
}

// joinSegments builds the canonical map key for a full key.
func joinSegments(segs []string) string {
	return strings.Join(segs, segmentSeparator)
}

// hasPrefix reports whether canonical segments segs descend from (or equal)
// the canonical prefix segments.
func hasPrefix(segs, prefix []string) bool {
	if len(prefix) > len(segs) {
		return false
	}

	for i, p := range prefix {
		if segs[i] != p {
			return false
		}
	}

	return true
}

// String renders a key for logs.
func (k Key) String() string {
	parts := make([]string, len(k))

	for i, seg := range k {
		b, err := json.Marshal(seg)
		if err != nil {
			parts[i] = fmt.Sprintf("%v", seg)
			continue
		}

		parts[i] = string(b)
	}

	return "[" + strings.Join(parts, ",") + "]"
}
