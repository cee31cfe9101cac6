package images

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SanitizeFilename makes an uploaded filename safe to use as an object key
// and in a URL path. Accents are transliterated, whitespace runs become a
// single '-', parentheses are removed and any directory part is dropped.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		name = ""
	}

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	if folded, _, err := transform.String(t, name); err == nil {
		name = folded
	}

	name = strings.Join(strings.Fields(name), "-")
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '(' || r == ')':
			return -1
		case r == '/' || r == '\\' || r == '?' || r == '#' || r == '%':
			return -1
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, name)

	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "image"
	}
	return name
}

// StoredName is the object key for an upload: <unix-ms>-blog-<sanitized>.
func StoredName(now time.Time, original string) string {
	return fmt.Sprintf("%d-blog-%s", now.UnixMilli(), SanitizeFilename(original))
}
