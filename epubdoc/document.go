package epubdoc

import (
	"fmt"
	"path"
	"unicode/utf8"

	"github.com/quillreader/quill/container"
	"github.com/quillreader/quill/htmltext"
	"github.com/quillreader/quill/priority"
)

const (
	// defaultChapterSize pre-sizes the conversion buffer when the archive
	// does not declare an uncompressed size.
	defaultChapterSize = 16 * 1024

	// A freshly opened book advances past chapters shorter than this many
	// characters (image-only covers, blank separators), trying at most
	// retryAttempts times.
	minChapterRunes = 50
	retryAttempts   = 5
)

// Document is one open book. Exactly one chapter's converted text is resident
// at a time; navigation replaces it wholesale. Not safe for concurrent use.
type Document struct {
	archive *container.Reader
	pkg     *packageDoc
	toc     *TableOfContents

	coord *priority.Coordinator
	level priority.Level

	current    int
	chapterDir string
	text       []byte
	images     []htmltext.ImageRef

	// lengths caches converted text length per chapter, -1 when unknown.
	// Populated lazily; discarded on Close.
	lengths []int
}

// Option configures a Document.
type Option func(*Document)

// WithCoordinator wires the document's long operations (archive scans,
// chapter conversion, length computation) to checkpoint against c at the
// given level.
func WithCoordinator(c *priority.Coordinator, level priority.Level) Option {
	return func(d *Document) {
		d.coord = c
		d.level = level
	}
}

// Open opens the book at path and loads its first content chapter, skipping
// detected front matter.
func Open(path string, opts ...Option) (*Document, error) {
	return open(path, -1, opts)
}

// OpenAt opens the book at path and loads chapter restoreIndex directly,
// bypassing the front-matter heuristics. Used to resume a previous reading
// position; an out-of-range index falls back to the Open behavior.
func OpenAt(path string, restoreIndex int, opts ...Option) (*Document, error) {
	return open(path, restoreIndex, opts)
}

func open(bookPath string, restoreIndex int, opts []Option) (*Document, error) {
	d := &Document{current: -1, level: priority.Normal}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.parseStructure(bookPath); err != nil {
		return nil, err
	}

	d.lengths = make([]int, len(d.pkg.spine))
	for i := range d.lengths {
		d.lengths[i] = -1
	}

	if restoreIndex >= 0 && restoreIndex < len(d.pkg.spine) {
		d.loadChapter(restoreIndex)
		return d, nil
	}

	d.loadChapter(d.frontMatterStart())
	for attempts := 0; attempts < retryAttempts; attempts++ {
		if utf8.RuneCount(d.text) >= minChapterRunes || d.current+1 >= len(d.pkg.spine) {
			break
		}
		d.loadChapter(d.current + 1)
	}
	return d, nil
}

// LoadMetadata parses only the package descriptor at path and returns its
// metadata, leaving nothing open.
func LoadMetadata(bookPath string, opts ...Option) (Metadata, error) {
	d := &Document{current: -1, level: priority.Normal}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.parseStructure(bookPath); err != nil {
		return Metadata{}, err
	}
	meta := d.Metadata()
	d.Close()
	return meta, nil
}

// parseStructure opens the archive and builds the manifest and spine. Any
// structural failure closes the archive and reports; the document stays
// unusable.
func (d *Document) parseStructure(bookPath string) error {
	var copts []container.Option
	if d.coord != nil {
		copts = append(copts, container.WithCoordinator(d.coord, d.level))
	}

	archive, err := container.Open(bookPath, copts...)
	if err != nil {
		return fmt.Errorf("epub: open %s: %w", bookPath, err)
	}

	pointer, err := archive.Extract(containerPointer)
	if err != nil {
		archive.Close()
		return fmt.Errorf("%w: %v", ErrNoRootFile, err)
	}
	opfPath, err := parseRootFile(pointer)
	if err != nil {
		archive.Close()
		return err
	}

	descriptor, err := archive.Extract(opfPath)
	if err != nil {
		archive.Close()
		return fmt.Errorf("%w: %s: %v", ErrBadDescriptor, opfPath, err)
	}
	pkg, err := parsePackage(descriptor, opfPath)
	if err != nil {
		archive.Close()
		return err
	}

	d.archive = archive
	d.pkg = pkg
	return nil
}

// Close releases the archive and clears all document state. Idempotent; a
// closed document reports an empty spine and no text.
func (d *Document) Close() error {
	if d.archive != nil {
		d.archive.Close()
		d.archive = nil
	}
	d.pkg = nil
	d.toc = nil
	d.current = -1
	d.chapterDir = ""
	d.text = nil
	d.images = nil
	d.lengths = nil
	return nil
}

// JumpToChapter makes chapter index resident.
func (d *Document) JumpToChapter(index int) error {
	if d.pkg == nil {
		return ErrClosed
	}
	if index < 0 || index >= len(d.pkg.spine) {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, index, len(d.pkg.spine))
	}
	return d.loadChapter(index)
}

// NextChapter advances one spine position. It reports whether it moved; there
// is no wraparound.
func (d *Document) NextChapter() bool {
	if d.pkg == nil || d.current+1 >= len(d.pkg.spine) {
		return false
	}
	d.loadChapter(d.current + 1)
	return true
}

// PrevChapter moves back one spine position. It reports whether it moved.
func (d *Document) PrevChapter() bool {
	if d.pkg == nil || d.current <= 0 {
		return false
	}
	d.loadChapter(d.current - 1)
	return true
}

// Text returns a substring of the resident chapter's converted text, clamped
// to what is available. Out-of-range offsets yield "".
func (d *Document) Text(offset, length int) string {
	if len(d.text) == 0 || offset < 0 || offset >= len(d.text) || length <= 0 {
		return ""
	}
	end := offset + length
	if end > len(d.text) {
		end = len(d.text)
	}
	return string(d.text[offset:end])
}

// TextLength returns the resident chapter's converted length in bytes.
func (d *Document) TextLength() int {
	return len(d.text)
}

// ChapterTextLength returns chapter index's converted text length without
// making it resident: the resident chapter answers directly, cached values
// answer from the cache, and anything else costs one length-only streaming
// pass whose result is cached.
func (d *Document) ChapterTextLength(index int) int {
	if d.pkg == nil || index < 0 || index >= len(d.pkg.spine) {
		return 0
	}
	if index == d.current {
		return len(d.text)
	}
	if d.lengths[index] >= 0 {
		return d.lengths[index]
	}

	counter := htmltext.NewLengthCounter()
	d.streamChapter(d.pkg.spine[index].Path, counter)
	d.lengths[index] = counter.Len()
	return d.lengths[index]
}

// Metadata returns the document-level metadata.
func (d *Document) Metadata() Metadata {
	if d.pkg == nil {
		return Metadata{}
	}
	return Metadata{
		Title:    d.pkg.title,
		Author:   d.pkg.author,
		Language: d.pkg.language,
		Chapters: len(d.pkg.spine),
	}
}

// Title returns the book's title, raw as written in the descriptor.
func (d *Document) Title() string {
	if d.pkg == nil {
		return ""
	}
	return d.pkg.title
}

// Author returns the book's first listed creator.
func (d *Document) Author() string {
	if d.pkg == nil {
		return ""
	}
	return d.pkg.author
}

// Language returns the book's declared language, defaulting to "en".
func (d *Document) Language() string {
	if d.pkg == nil {
		return ""
	}
	return d.pkg.language
}

// SpineLength returns the number of reading-order chapters.
func (d *Document) SpineLength() int {
	if d.pkg == nil {
		return 0
	}
	return len(d.pkg.spine)
}

// Spine returns the resolved container path of every chapter in reading
// order.
func (d *Document) Spine() []string {
	if d.pkg == nil {
		return nil
	}
	paths := make([]string, len(d.pkg.spine))
	for i, s := range d.pkg.spine {
		paths[i] = s.Path
	}
	return paths
}

// CurrentChapter returns the resident chapter's spine index, or -1 when no
// chapter is resident.
func (d *Document) CurrentChapter() int {
	return d.current
}

// Images returns the resident chapter's image references in text order.
func (d *Document) Images() []htmltext.ImageRef {
	return d.images
}

// ImageData returns an image's raw payload from the container.
func (d *Document) ImageData(ref htmltext.ImageRef) ([]byte, error) {
	if d.archive == nil {
		return nil, ErrClosed
	}
	return d.archive.ExtractBinary(ref.Path)
}

// loadChapter replaces the resident chapter with spine index's converted
// text. A chapter that fails mid-stream stays resident with whatever text
// converted before the failure; the open-time retry policy deals with
// near-empty results.
func (d *Document) loadChapter(index int) error {
	sp := d.pkg.spine[index]

	dir := ""
	if parent := path.Dir(sp.Path); parent != "." {
		dir = parent
	}

	conv := htmltext.NewConverter(dir)
	if n := d.archive.UncompressedSize(sp.Path); n > 0 {
		conv.Grow(int(n))
	} else {
		conv.Grow(defaultChapterSize)
	}

	err := d.streamChapter(sp.Path, conv)

	d.current = index
	d.chapterDir = dir
	d.text = conv.Bytes()
	d.images = conv.Images()
	d.lengths[index] = conv.Len()

	if err != nil {
		return fmt.Errorf("epub: chapter %d: %w", index, err)
	}
	return nil
}

// streamChapter pumps a chapter's markup through conv, transcoding to UTF-8
// first when the chapter's XML declaration names another charset.
func (d *Document) streamChapter(name string, conv *htmltext.Converter) error {
	var decoder *htmltext.StreamDecoder
	first := true

	_, err := d.archive.ExtractStreaming(name, func(chunk []byte) container.Control {
		if first {
			first = false
			if charset := htmltext.DetectEncoding(chunk); charset != "" {
				// Best effort: an unknown charset reads as raw bytes.
				decoder, _ = htmltext.NewStreamDecoder(charset)
			}
		}

		if decoder != nil {
			decoded, derr := decoder.Decode(chunk)
			if derr != nil {
				decoder = nil
				conv.Write(chunk)
			} else {
				conv.Write(decoded)
			}
		} else {
			conv.Write(chunk)
		}
		return container.Continue
	})
	return err
}
