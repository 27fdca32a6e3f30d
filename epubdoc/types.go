// Package epubdoc drives one open e-book: it locates the package descriptor
// inside the container, builds the manifest and spine, and keeps exactly one
// chapter's converted text resident at a time. All navigation replaces the
// resident chapter wholesale.
//
// A Document is owned by a single caller; it has no internal locking. The
// shared priority coordinator it may be wired to is safe for concurrent use.
package epubdoc

import "errors"

// Document-related errors.
var (
	ErrNoRootFile    = errors.New("epub: package descriptor pointer not found")
	ErrBadDescriptor = errors.New("epub: invalid package descriptor")
	ErrEmptySpine    = errors.New("epub: no readable chapters in spine")
	ErrOutOfRange    = errors.New("epub: chapter index out of range")
	ErrClosed        = errors.New("epub: document is closed")
)

// containerPointer is the fixed location of the descriptor pointer file.
const containerPointer = "META-INF/container.xml"

// manifestItem binds a package identifier to a container href.
type manifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

// spineItem is one reading-order chapter with its resolved container path.
type spineItem struct {
	IDRef string
	Path  string
}

// Metadata is the document-level description read from the package
// descriptor. Chapters is the spine length.
type Metadata struct {
	Title    string
	Author   string
	Language string
	Chapters int
}

// TableOfContents is the book's navigation structure.
type TableOfContents struct {
	Title   string
	Entries []TOCEntry
}

// TOCEntry is a single navigation entry. Href is as written in the
// navigation document, relative to that document's directory.
type TOCEntry struct {
	Title    string
	Href     string
	Children []TOCEntry
}
