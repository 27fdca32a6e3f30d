package epubdoc

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/quillreader/quill/htmltext"
)

// longBody is chapter filler comfortably past the short-chapter threshold.
var longBody = strings.Repeat("The quick brown fox jumps over the lazy dog. ", 5)

// writeBook builds an EPUB-shaped archive from a name-to-content map.
func writeBook(t *testing.T, files map[string]string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(files[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// opfFor builds a package descriptor whose spine is text/ch0.xhtml,
// text/ch1.xhtml, ... plus any extra manifest lines.
func opfFor(chapterCount int, extraManifest string) string {
	var manifest, spine strings.Builder
	for i := 0; i < chapterCount; i++ {
		fmt.Fprintf(&manifest, `<item id="ch%d" href="text/ch%d.xhtml" media-type="application/xhtml+xml"/>`+"\n", i, i)
		fmt.Fprintf(&spine, `<itemref idref="ch%d"/>`+"\n", i)
	}
	return `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Voyage Out</dc:title>
    <dc:creator>V. Woolf</dc:creator>
    <dc:language>en-GB</dc:language>
  </metadata>
  <manifest>
` + manifest.String() + extraManifest + `  </manifest>
  <spine>
` + spine.String() + `  </spine>
</package>`
}

// makeBook writes a complete book whose chapters hold the given markup.
func makeBook(t *testing.T, chapters ...string) string {
	t.Helper()

	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": containerXML,
		"OEBPS/content.opf":      opfFor(len(chapters), ""),
	}
	for i, markup := range chapters {
		files[fmt.Sprintf("OEBPS/text/ch%d.xhtml", i)] = markup
	}
	return writeBook(t, files)
}

func mustOpen(t *testing.T, path string, opts ...Option) *Document {
	t.Helper()
	d, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpenReadsMetadataAndFirstChapter(t *testing.T) {
	d := mustOpen(t, makeBook(t, "<p>"+longBody+"</p>"))

	if d.Title() != "Voyage Out" {
		t.Errorf("Title = %q", d.Title())
	}
	if d.Author() != "V. Woolf" {
		t.Errorf("Author = %q", d.Author())
	}
	if d.Language() != "en-GB" {
		t.Errorf("Language = %q", d.Language())
	}
	if d.SpineLength() != 1 {
		t.Errorf("SpineLength = %d, want 1", d.SpineLength())
	}
	if d.CurrentChapter() != 0 {
		t.Errorf("CurrentChapter = %d, want 0", d.CurrentChapter())
	}
	if got := d.Text(0, 9); got != "The quick" {
		t.Errorf("Text(0, 9) = %q", got)
	}
}

func TestOpenDefaultsLanguage(t *testing.T) {
	files := map[string]string{
		"META-INF/container.xml": containerXML,
		"OEBPS/content.opf": `<package>
  <metadata><dc:title>Untitled</dc:title></metadata>
  <manifest><item id="c" href="c.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine><itemref idref="c"/></spine>
</package>`,
		"OEBPS/c.xhtml": "<p>" + longBody + "</p>",
	}
	d := mustOpen(t, writeBook(t, files))

	if d.Language() != "en" {
		t.Errorf("Language = %q, want default en", d.Language())
	}
	if d.Author() != "" {
		t.Errorf("Author = %q, want empty", d.Author())
	}
}

func TestFrontMatterSkipped(t *testing.T) {
	d := mustOpen(t, makeBook(t,
		`<p>Table of Contents</p><p>`+longBody+`</p>`,
		`<p>Copyright 2001 Someone.</p><p>`+longBody+`</p>`,
		`<p>`+longBody+`</p>`,
	))

	if d.CurrentChapter() != 2 {
		t.Errorf("CurrentChapter = %d, want 2 after skipping TOC and copyright pages", d.CurrentChapter())
	}
}

func TestFrontMatterLongContentsPageNotSkipped(t *testing.T) {
	// "Contents" alone only marks a page skippable when the sampled prefix
	// is under 500 bytes; pad the chapter well past that.
	page := "<p>Contents of the old house filled every room. " + longBody + longBody + longBody + "</p>"
	if len(page) < 600 {
		t.Fatal("fixture too short for the case it tests")
	}
	d := mustOpen(t, makeBook(t, page, "<p>"+longBody+"</p>"))

	if d.CurrentChapter() != 0 {
		t.Errorf("CurrentChapter = %d, want 0 for a long page mentioning Contents", d.CurrentChapter())
	}
}

func TestShortDedicationPageSkipped(t *testing.T) {
	d := mustOpen(t, makeBook(t,
		`<p>Dedication: for R.</p>`,
		`<p>`+longBody+`</p>`,
	))

	if d.CurrentChapter() != 1 {
		t.Errorf("CurrentChapter = %d, want 1 after skipping short dedication", d.CurrentChapter())
	}
}

func TestNearEmptyChapterRetried(t *testing.T) {
	// First chapter converts to under 50 characters and matches no
	// front-matter fingerprint; the open-time retry advances past it.
	d := mustOpen(t, makeBook(t,
		`<p><img src="frontispiece.png"/></p>`,
		`<p>`+longBody+`</p>`,
	))

	if d.CurrentChapter() != 1 {
		t.Errorf("CurrentChapter = %d, want 1 after near-empty first chapter", d.CurrentChapter())
	}
}

func TestOpenAtBypassesHeuristics(t *testing.T) {
	path := makeBook(t,
		`<p>Table of Contents</p>`,
		`<p>`+longBody+`</p>`,
		`<p>Chapter two. `+longBody+`</p>`,
	)

	d, err := OpenAt(path, 2)
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	defer d.Close()

	if d.CurrentChapter() != 2 {
		t.Errorf("CurrentChapter = %d, want restored index 2", d.CurrentChapter())
	}
	if !strings.HasPrefix(d.Text(0, 12), "Chapter two.") {
		t.Errorf("Text = %q, want chapter two's content", d.Text(0, 12))
	}
}

func TestNavigationBounds(t *testing.T) {
	d := mustOpen(t, makeBook(t,
		"<p>one "+longBody+"</p>",
		"<p>two "+longBody+"</p>",
		"<p>three "+longBody+"</p>",
	))

	if err := d.JumpToChapter(5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("JumpToChapter(5) err = %v, want ErrOutOfRange", err)
	}
	if err := d.JumpToChapter(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("JumpToChapter(-1) err = %v, want ErrOutOfRange", err)
	}

	if err := d.JumpToChapter(0); err != nil {
		t.Fatal(err)
	}
	if d.PrevChapter() {
		t.Error("PrevChapter moved before the first chapter")
	}
	if !d.NextChapter() || d.CurrentChapter() != 1 {
		t.Errorf("NextChapter: CurrentChapter = %d, want 1", d.CurrentChapter())
	}
	if !d.NextChapter() || d.CurrentChapter() != 2 {
		t.Errorf("NextChapter: CurrentChapter = %d, want 2", d.CurrentChapter())
	}
	if d.NextChapter() {
		t.Error("NextChapter moved past the last chapter")
	}
	if !d.PrevChapter() || d.CurrentChapter() != 1 {
		t.Errorf("PrevChapter: CurrentChapter = %d, want 1", d.CurrentChapter())
	}
}

func TestTextClamping(t *testing.T) {
	d := mustOpen(t, makeBook(t, "<p>"+longBody+"</p>"))
	n := d.TextLength()
	if n == 0 {
		t.Fatal("no resident text")
	}

	if got := d.Text(0, n*10); len(got) != n {
		t.Errorf("over-long request returned %d bytes, want %d", len(got), n)
	}
	if got := d.Text(n-3, 100); got != d.Text(n-3, 3) {
		t.Errorf("tail request = %q not clamped", got)
	}
	if d.Text(n, 10) != "" {
		t.Error("offset at end returned text")
	}
	if d.Text(-1, 10) != "" {
		t.Error("negative offset returned text")
	}
	if d.Text(0, 0) != "" {
		t.Error("zero length returned text")
	}
}

func TestChapterTextLengthCache(t *testing.T) {
	d := mustOpen(t, makeBook(t,
		"<p>"+longBody+"</p>",
		"<p>short but over the minimum length for a chapter body here</p>",
	))

	resident := d.ChapterTextLength(d.CurrentChapter())
	if resident != d.TextLength() {
		t.Errorf("resident length %d != TextLength %d", resident, d.TextLength())
	}

	other := 1 - d.CurrentChapter()
	first := d.ChapterTextLength(other)
	if first == 0 {
		t.Fatal("length-only pass returned 0")
	}
	if again := d.ChapterTextLength(other); again != first {
		t.Errorf("cached length %d != first computation %d", again, first)
	}

	// Making the chapter resident must agree with the length-only pass.
	if err := d.JumpToChapter(other); err != nil {
		t.Fatal(err)
	}
	if d.TextLength() != first {
		t.Errorf("resident length %d != precomputed %d", d.TextLength(), first)
	}

	if d.ChapterTextLength(99) != 0 {
		t.Error("out-of-range index returned a length")
	}
}

func TestChapterImages(t *testing.T) {
	png := "\x89PNG fake payload"
	files := map[string]string{
		"META-INF/container.xml": containerXML,
		"OEBPS/content.opf": opfFor(1, `<item id="pic" href="images/pic.png" media-type="image/png"/>
`),
		"OEBPS/text/ch0.xhtml":  `<p>` + longBody + `<img src="../images/pic.png" alt="A map" width="300"/></p>`,
		"OEBPS/images/pic.png":  png,
	}
	d := mustOpen(t, writeBook(t, files))

	images := d.Images()
	if len(images) != 1 {
		t.Fatalf("Images() = %d refs, want 1", len(images))
	}
	ref := images[0]
	if ref.Path != "OEBPS/images/pic.png" {
		t.Errorf("Path = %q", ref.Path)
	}
	if ref.Alt != "A map" {
		t.Errorf("Alt = %q", ref.Alt)
	}
	if !ref.Block {
		t.Error("width 300 image not classified as block")
	}
	r, _ := utf8.DecodeRuneInString(d.Text(ref.Offset, utf8.UTFMax))
	if r != htmltext.PlaceholderRune {
		t.Errorf("rune at offset %d = %U, want placeholder", ref.Offset, r)
	}

	data, err := d.ImageData(ref)
	if err != nil {
		t.Fatalf("ImageData failed: %v", err)
	}
	if string(data) != png {
		t.Errorf("ImageData = %q, want stored payload", data)
	}
}

func TestOpenFailures(t *testing.T) {
	t.Run("no pointer file", func(t *testing.T) {
		path := writeBook(t, map[string]string{"mimetype": "application/epub+zip"})
		if _, err := Open(path); !errors.Is(err, ErrNoRootFile) {
			t.Errorf("err = %v, want ErrNoRootFile", err)
		}
	})

	t.Run("pointer without full-path", func(t *testing.T) {
		path := writeBook(t, map[string]string{
			"META-INF/container.xml": `<container><rootfiles><rootfile media-type="x"/></rootfiles></container>`,
		})
		if _, err := Open(path); !errors.Is(err, ErrNoRootFile) {
			t.Errorf("err = %v, want ErrNoRootFile", err)
		}
	})

	t.Run("missing descriptor", func(t *testing.T) {
		path := writeBook(t, map[string]string{
			"META-INF/container.xml": containerXML,
		})
		if _, err := Open(path); !errors.Is(err, ErrBadDescriptor) {
			t.Errorf("err = %v, want ErrBadDescriptor", err)
		}
	})

	t.Run("empty spine", func(t *testing.T) {
		path := writeBook(t, map[string]string{
			"META-INF/container.xml": containerXML,
			"OEBPS/content.opf": `<package><manifest>
<item id="c" href="c.xhtml" media-type="application/xhtml+xml"/>
</manifest><spine><itemref idref="missing"/></spine></package>`,
		})
		if _, err := Open(path); !errors.Is(err, ErrEmptySpine) {
			t.Errorf("err = %v, want ErrEmptySpine", err)
		}
	})

	t.Run("not an archive", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "junk.epub")
		os.WriteFile(p, []byte("not a zip file at all, much too short anyway"), 0o644)
		if _, err := Open(p); err == nil {
			t.Error("Open succeeded on junk")
		}
	})
}

func TestClosedDocumentBehavior(t *testing.T) {
	d := mustOpen(t, makeBook(t, "<p>"+longBody+"</p>"))

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	if d.SpineLength() != 0 {
		t.Errorf("SpineLength after close = %d", d.SpineLength())
	}
	if d.Text(0, 10) != "" {
		t.Error("closed document returned text")
	}
	if d.TextLength() != 0 {
		t.Error("closed document reports resident text")
	}
	if err := d.JumpToChapter(0); !errors.Is(err, ErrClosed) {
		t.Errorf("JumpToChapter err = %v, want ErrClosed", err)
	}
	if d.NextChapter() || d.PrevChapter() {
		t.Error("closed document navigated")
	}
	if _, err := d.ImageData(htmltext.ImageRef{Path: "x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("ImageData err = %v, want ErrClosed", err)
	}
}

func TestLoadMetadata(t *testing.T) {
	meta, err := LoadMetadata(makeBook(t, "<p>"+longBody+"</p>", "<p>"+longBody+"</p>"))
	if err != nil {
		t.Fatalf("LoadMetadata failed: %v", err)
	}
	if meta.Title != "Voyage Out" || meta.Author != "V. Woolf" {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.Chapters != 2 {
		t.Errorf("Chapters = %d, want 2", meta.Chapters)
	}
}

func TestManifestHrefUnescaping(t *testing.T) {
	files := map[string]string{
		"META-INF/container.xml": containerXML,
		"OEBPS/content.opf": `<package>
<metadata><dc:title>T</dc:title></metadata>
<manifest><item id="c" href="my%20chapter.xhtml" media-type="application/xhtml+xml"/></manifest>
<spine><itemref idref="c"/></spine></package>`,
		"OEBPS/my chapter.xhtml": "<p>" + longBody + "</p>",
	}
	d := mustOpen(t, writeBook(t, files))

	if got := d.Spine(); len(got) != 1 || got[0] != "OEBPS/my chapter.xhtml" {
		t.Errorf("Spine = %v", got)
	}
	if d.TextLength() == 0 {
		t.Error("chapter with escaped href not loaded")
	}
}

func TestLatin1ChapterTranscoded(t *testing.T) {
	// é as Latin-1 byte 0xE9; the declaration names the charset.
	markup := `<?xml version="1.0" encoding="ISO-8859-1"?><p>caf` + "\xE9" + ` ` + longBody + `</p>`
	d := mustOpen(t, makeBook(t, markup))

	if !strings.Contains(d.Text(0, 64), "café") {
		t.Errorf("Text = %q, want UTF-8 café", d.Text(0, 64))
	}
}
