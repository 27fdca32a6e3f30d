package htmltext

import (
	"bytes"
	"path"
	"strings"
	"unicode/utf8"
)

// PlaceholderRune marks the position of an embedded image in converted text.
// It is a private-use-area code point, so it can never collide with book
// content; renderers splice the corresponding ImageRef back in at its offset.
const PlaceholderRune = '\uE000'

// An image wider or taller than this many units is treated as a block-level
// visual rather than an inline glyph.
const blockDimension = 200

// ImageRef records one embedded image discovered during conversion. Offset is
// the byte position of its placeholder in the output text; offsets are
// non-decreasing in discovery order. Path is resolved against the chapter's
// directory and entity-decoded, as is Alt. Width and Height are zero when the
// markup declares none.
type ImageRef struct {
	Offset int
	Path   string
	Alt    string
	Width  int
	Height int
	Block  bool
}

// MathRef is the placeholder record for embedded math blocks. The converter
// declares it for renderers but does not yet populate it; math markup is
// currently dropped like any other unrecognized tag.
type MathRef struct {
	Offset int
	Markup string
	Block  bool
}

// Converter is a streaming markup-to-text transform. Feed it raw chapter
// markup in arbitrary chunks via Write; it folds whitespace, turns block
// elements into newlines, drops inline tags, and replaces images with
// PlaceholderRune while recording an ImageRef per image.
//
// Output never begins with whitespace, and Text/Bytes/Len exclude trailing
// whitespace, so block separators appear only between content.
type Converter struct {
	baseDir   string
	countOnly bool

	buf    bytes.Buffer
	outLen int // output length in bytes; mirrors buf.Len() when materializing
	trail  int // trailing whitespace bytes not yet followed by content

	inTag     bool
	tag       []byte
	lastSpace bool

	images []ImageRef
}

// NewConverter returns a Converter that materializes text. baseDir is the
// chapter's own directory inside the container, used to resolve relative
// image paths.
func NewConverter(baseDir string) *Converter {
	return &Converter{baseDir: baseDir, lastSpace: true}
}

// NewLengthCounter returns a Converter that runs the identical transform but
// only counts output bytes, for length queries that must not allocate a
// chapter's worth of text.
func NewLengthCounter() *Converter {
	return &Converter{countOnly: true, lastSpace: true}
}

// Grow pre-sizes the output buffer, typically from the archive entry's
// declared uncompressed size.
func (c *Converter) Grow(n int) {
	if !c.countOnly && n > 0 {
		c.buf.Grow(n)
	}
}

// Write consumes a chunk of raw markup. It never fails; the error return
// exists to satisfy io.Writer.
func (c *Converter) Write(p []byte) (int, error) {
	for _, ch := range p {
		if ch == '<' {
			c.inTag = true
			c.tag = c.tag[:0]
			continue
		}

		if c.inTag {
			if ch == '>' {
				c.inTag = false
				c.closeTag()
			} else {
				c.tag = append(c.tag, ch)
			}
			continue
		}

		// Source line breaks are ordinary whitespace.
		if ch == '\n' || ch == '\r' {
			ch = ' '
		}
		if ch == ' ' {
			if !c.lastSpace {
				c.emitByte(' ')
				c.lastSpace = true
			}
			continue
		}
		c.emitByte(ch)
		c.lastSpace = false
	}
	return len(p), nil
}

// Bytes returns the converted text with trailing whitespace removed. The
// slice aliases the converter's buffer.
func (c *Converter) Bytes() []byte {
	b := c.buf.Bytes()
	if c.trail > len(b) {
		return nil
	}
	return b[:len(b)-c.trail]
}

// Text returns the converted text with trailing whitespace removed.
func (c *Converter) Text() string {
	return string(c.Bytes())
}

// Len returns the converted text's length in bytes, excluding trailing
// whitespace. It is valid in both materializing and length-only modes.
func (c *Converter) Len() int {
	return c.outLen - c.trail
}

// Images returns the image references discovered so far, in text order.
func (c *Converter) Images() []ImageRef {
	return c.images
}

func (c *Converter) emitByte(ch byte) {
	if ch == ' ' || ch == '\n' {
		c.trail++
	} else {
		c.trail = 0
	}
	if !c.countOnly {
		c.buf.WriteByte(ch)
	}
	c.outLen++
}

func (c *Converter) emitRune(r rune) {
	var scratch [utf8.UTFMax]byte
	n := utf8.EncodeRune(scratch[:], r)
	c.trail = 0
	if !c.countOnly {
		c.buf.Write(scratch[:n])
	}
	c.outLen += n
}

// closeTag classifies the buffered tag and applies its textual effect. Block
// elements separate content with a single newline; images become placeholder
// code points; everything else is dropped.
func (c *Converter) closeTag() {
	tag := string(c.tag)
	name, closing := elementName(tag)

	switch {
	case isBlockName(name):
		if !c.lastSpace {
			c.emitByte('\n')
			c.lastSpace = true
		}
	case !closing && (name == "img" || name == "image"):
		c.handleImage(name, tag)
	}
}

func (c *Converter) handleImage(name, tag string) {
	var src, alt string
	var width, height int
	ScanAttrs(tag, func(n, v string) bool {
		switch n {
		case "src":
			src = v
		case "xlink:href", "href":
			// SVG image elements carry their source as a link.
			if name == "image" && src == "" {
				src = v
			}
		case "alt":
			alt = v
		case "width":
			width = parseDimension(v)
		case "height":
			height = parseDimension(v)
		}
		return true
	})
	if src == "" {
		return
	}

	ref := ImageRef{
		Offset: c.outLen,
		Path:   c.resolvePath(DecodeEntities(src)),
		Alt:    DecodeEntities(alt),
		Width:  width,
		Height: height,
		Block:  width > blockDimension || height > blockDimension,
	}
	c.images = append(c.images, ref)

	c.emitRune(PlaceholderRune)
	c.lastSpace = false
}

// resolvePath maps an image reference to a container path. Rooted references
// are container-absolute; everything else, including ../ forms, resolves
// against the chapter's directory.
func (c *Converter) resolvePath(ref string) string {
	if strings.HasPrefix(ref, "/") {
		return path.Clean(ref[1:])
	}
	return path.Clean(path.Join(c.baseDir, ref))
}

// elementName extracts the tag's element name, lower-cased, and whether the
// tag is a closing form.
func elementName(tag string) (name string, closing bool) {
	if strings.HasPrefix(tag, "/") {
		closing = true
		tag = tag[1:]
	}
	end := len(tag)
	for i := 0; i < len(tag); i++ {
		if isTagSpace(tag[i]) || tag[i] == '/' {
			end = i
			break
		}
	}
	return strings.ToLower(tag[:end]), closing
}

func isBlockName(name string) bool {
	switch name {
	case "p", "div", "br", "li":
		return true
	}
	return len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6'
}

// parseDimension reads the leading integer of a width/height attribute,
// tolerating unit suffixes like "120px". Zero means "not declared".
func parseDimension(v string) int {
	v = strings.TrimSpace(v)
	n := 0
	seen := false
	for i := 0; i < len(v) && v[i] >= '0' && v[i] <= '9'; i++ {
		n = n*10 + int(v[i]-'0')
		seen = true
	}
	if !seen {
		return 0
	}
	return n
}
