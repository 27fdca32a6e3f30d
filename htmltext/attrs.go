package htmltext

import "strings"

// ScanAttrs walks the attributes of a buffered tag body (the text between '<'
// and '>', element name included) and calls fn for each name/value pair found.
// Attribute names are reported lower-cased; values may be double-quoted,
// single-quoted, or bare. fn returning false stops the scan.
//
// The scanner is a small explicit state machine rather than a parser: tag
// bodies here come from the markup tokenizer, which guarantees they contain no
// '<' or '>' and no nesting.
func ScanAttrs(tag string, fn func(name, value string) bool) {
	i := 0

	// Skip the element name, slash-prefixed or not.
	for i < len(tag) && !isTagSpace(tag[i]) {
		i++
	}

	for i < len(tag) {
		for i < len(tag) && (isTagSpace(tag[i]) || tag[i] == '/') {
			i++
		}
		if i >= len(tag) {
			return
		}

		nameStart := i
		for i < len(tag) && tag[i] != '=' && tag[i] != '/' && !isTagSpace(tag[i]) {
			i++
		}
		name := strings.ToLower(tag[nameStart:i])

		for i < len(tag) && isTagSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || tag[i] != '=' {
			// Valueless attribute.
			if name != "" && !fn(name, "") {
				return
			}
			continue
		}
		i++ // consume '='
		for i < len(tag) && isTagSpace(tag[i]) {
			i++
		}

		var value string
		if i < len(tag) && (tag[i] == '"' || tag[i] == '\'') {
			quote := tag[i]
			i++
			valStart := i
			for i < len(tag) && tag[i] != quote {
				i++
			}
			value = tag[valStart:i]
			if i < len(tag) {
				i++ // consume closing quote
			}
		} else {
			valStart := i
			for i < len(tag) && !isTagSpace(tag[i]) {
				i++
			}
			value = tag[valStart:i]
		}

		if name != "" && !fn(name, value) {
			return
		}
	}
}

// AttrValue returns the named attribute's value from a tag body, or "" if the
// attribute is absent.
func AttrValue(tag, name string) string {
	var value string
	ScanAttrs(tag, func(n, v string) bool {
		if n == name {
			value = v
			return false
		}
		return true
	})
	return value
}

func isTagSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
