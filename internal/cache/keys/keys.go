// Package keys builds the Redis keys and region fingerprints used by the
// snapshot mirror and viewport events.
package keys

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

const snapshotVersion = "v1"

// Snapshot returns the key holding the mirrored cache entry for namespace.
func Snapshot(namespace string) string {
	ns := sanitize(strings.TrimSpace(namespace))
	if ns == "" {
		ns = "default"
	}
	return ns + ":viewport:snapshot:" + snapshotVersion
}

// Region returns a short stable fingerprint for r. Coordinates are rounded to
// 1e-7 degrees so float noise does not change the result.
func Region(r model.Region) string {
	canon := canonical(r)
	return fmt.Sprintf("r=%016x", xxhash.Sum64String(canon))
}

func canonical(r model.Region) string {
	var b strings.Builder
	b.Grow(64)
	for i, v := range []float64{r.North, r.South, r.East, r.West} {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', 7, 64))
	}
	return b.String()
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
