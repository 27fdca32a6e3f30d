package epubdoc

import "strings"

// The package descriptor is consumed with a narrow tag scanner instead of a
// general XML parser. Descriptors are machine-written by packaging tools, and
// the scanner needs only three shapes from them: a named tag's attributes, a
// named element's immediate inner text, and nothing else. Namespace
// declarations, comments, and doctypes all fall out as tags nothing matches.

// scanElements calls fn with the body of every tag (the text between '<' and
// '>') whose element name equals name. Closing tags are not reported. fn
// returning false stops the scan.
func scanElements(doc string, name string, fn func(tag string) bool) {
	for i := 0; i < len(doc); {
		open := strings.IndexByte(doc[i:], '<')
		if open < 0 {
			return
		}
		i += open + 1
		close := strings.IndexByte(doc[i:], '>')
		if close < 0 {
			return
		}
		tag := doc[i : i+close]
		i += close + 1

		n, closing := tagName(tag)
		if !closing && n == name && !fn(tag) {
			return
		}
	}
}

// firstElementText returns the trimmed inner text of the first element with
// the given name, raw and not entity-decoded. Nested markup inside the
// element is ignored; only the text up to the next tag counts.
func firstElementText(doc string, name string) string {
	var text string
	found := false

	for i := 0; i < len(doc) && !found; {
		open := strings.IndexByte(doc[i:], '<')
		if open < 0 {
			break
		}
		i += open + 1
		close := strings.IndexByte(doc[i:], '>')
		if close < 0 {
			break
		}
		tag := doc[i : i+close]
		i += close + 1

		n, closing := tagName(tag)
		if closing || n != name || strings.HasSuffix(tag, "/") {
			continue
		}

		end := strings.IndexByte(doc[i:], '<')
		if end < 0 {
			end = len(doc) - i
		}
		text = strings.TrimSpace(doc[i : i+end])
		found = true
	}
	return text
}

// tagName extracts a tag body's element name, lower-cased, and whether it is
// a closing tag.
func tagName(tag string) (name string, closing bool) {
	if strings.HasPrefix(tag, "/") {
		closing = true
		tag = tag[1:]
	}
	end := len(tag)
	for i := 0; i < len(tag); i++ {
		if c := tag[i]; c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '/' {
			end = i
			break
		}
	}
	return strings.ToLower(tag[:end]), closing
}
