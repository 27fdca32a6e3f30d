// Package htmltext turns e-book chapter markup into plain reading text. It is
// deliberately not a conforming HTML parser: chapter markup is produced by
// packaging tools and is well-formed enough that a narrow streaming tokenizer
// handles it in a fraction of the footprint a general parser would need.
package htmltext

import "strings"

// An entity body longer than this without a terminating semicolon is treated
// as a literal ampersand. Real entities are short; the cap bounds the cost of
// scanning garbage input.
const maxEntityScan = 32

// namedEntities maps entity names to their replacement text. Curly quotes
// are flattened to their ASCII forms because reader fonts are not guaranteed
// to carry the typographic variants.
var namedEntities = map[string]string{
	"amp":  "&",
	"lt":   "<",
	"gt":   ">",
	"quot": `"`,
	"apos": "'",
	"nbsp": " ",

	"hellip": "…",
	"mdash":  "—",
	"ndash":  "–",
	"lsquo":  "'",
	"rsquo":  "'",
	"ldquo":  `"`,
	"rdquo":  `"`,

	"bull":   "•",
	"copy":   "©",
	"reg":    "®",
	"trade":  "™",
	"deg":    "°",
	"frac12": "½",
	"frac14": "¼",
	"frac34": "¾",
}

// DecodeEntities replaces character entities in s with their UTF-8 text.
// Whitespace inside the &...; span is tolerated ("& #160 ;" decodes like
// "&#160;"). Numeric entities accept decimal and hex forms; 0xA0 becomes a
// plain space, and out-of-range or surrogate code points become '?'.
// Unrecognized or malformed entities pass through verbatim, delimiters
// included; an ampersand with no semicolon in reach is emitted literally.
func DecodeEntities(s string) string {
	amp := strings.IndexByte(s, '&')
	if amp < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:amp])

	for i := amp; i < len(s); {
		if s[i] != '&' {
			b.WriteByte(s[i])
			i++
			continue
		}

		j := i + 1
		for j < len(s) && isEntitySpace(s[j]) {
			j++
		}
		if j >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}

		k := j
		for scanned := 0; k < len(s) && s[k] != ';' && scanned < maxEntityScan; scanned++ {
			k++
		}
		if k >= len(s) || s[k] != ';' {
			b.WriteByte('&')
			i++
			continue
		}

		body := strings.TrimRight(s[j:k], " \t\r\n")
		if decodeEntity(&b, body) {
			i = k + 1
		} else {
			b.WriteString(s[i : k+1])
			i = k + 1
		}
	}
	return b.String()
}

func decodeEntity(b *strings.Builder, body string) bool {
	if body == "" {
		return false
	}
	if body[0] == '#' {
		return decodeNumericEntity(b, body[1:])
	}
	if text, ok := namedEntities[body]; ok {
		b.WriteString(text)
		return true
	}
	return false
}

func decodeNumericEntity(b *strings.Builder, digits string) bool {
	base := uint32(10)
	if len(digits) > 0 && (digits[0] == 'x' || digits[0] == 'X') {
		base = 16
		digits = digits[1:]
	}

	var cp uint32
	t := 0
	for ; t < len(digits); t++ {
		v, ok := digitVal(digits[t], base)
		if !ok {
			break
		}
		cp = cp*base + v
	}
	if t == 0 || t != len(digits) {
		return false
	}

	switch {
	case cp == 0xA0:
		// Non-breaking space renders as a plain space.
		b.WriteByte(' ')
	case cp > 0x10FFFF || (cp >= 0xD800 && cp <= 0xDFFF):
		b.WriteByte('?')
	default:
		b.WriteRune(rune(cp))
	}
	return true
}

func digitVal(c byte, base uint32) (uint32, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint32(c - '0'), true
	case base == 16 && c >= 'a' && c <= 'f':
		return uint32(c-'a') + 10, true
	case base == 16 && c >= 'A' && c <= 'F':
		return uint32(c-'A') + 10, true
	}
	return 0, false
}

func isEntitySpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
