// Package quill reads e-books for constrained reader devices: it opens
// EPUB-style containers, converts one chapter at a time into plain text with
// image placeholders, and keeps long operations cooperative with
// higher-priority work.
//
// Basic usage:
//
//	book, err := quill.Open("novel.epub")
//	if err != nil {
//	    // handle error
//	}
//	defer book.Close()
//	fmt.Println(book.Title())
//	fmt.Println(book.Text(0, 800))
//
// Resuming a reading position:
//
//	book, err := quill.OpenAt("novel.epub", savedChapter)
//
// Wiring background work to the shared coordinator:
//
//	coord := quill.NewCoordinator()
//	book, err := quill.Open("novel.epub", quill.WithCoordinator(coord, quill.PriorityLow))
//
// For lower-level access, the container, htmltext, and priority packages are
// also available.
package quill

import (
	"github.com/quillreader/quill/epubdoc"
	"github.com/quillreader/quill/priority"
)

// Book is one open document. See epubdoc.Document for the full API.
type Book = epubdoc.Document

// Metadata is a book's document-level description.
type Metadata = epubdoc.Metadata

// Option configures how a book is opened.
type Option = epubdoc.Option

// Coordinator arbitrates between background work and interactive operations.
type Coordinator = priority.Coordinator

// Priority levels for coordinated operations.
const (
	PriorityIdle     = priority.Idle
	PriorityLow      = priority.Low
	PriorityNormal   = priority.Normal
	PriorityHigh     = priority.High
	PriorityCritical = priority.Critical
)

// Open opens the book at path and loads its first content chapter, skipping
// detected front matter.
func Open(path string, opts ...Option) (*Book, error) {
	return epubdoc.Open(path, opts...)
}

// OpenAt opens the book at path and loads the given chapter directly,
// bypassing front-matter heuristics.
func OpenAt(path string, chapter int, opts ...Option) (*Book, error) {
	return epubdoc.OpenAt(path, chapter, opts...)
}

// LoadMetadata reads only the book's metadata, leaving nothing open.
func LoadMetadata(path string, opts ...Option) (Metadata, error) {
	return epubdoc.LoadMetadata(path, opts...)
}

// NewCoordinator returns an empty coordinator, typically shared process-wide.
func NewCoordinator() *Coordinator {
	return priority.NewCoordinator()
}

// WithCoordinator wires a book's long operations to checkpoint against c at
// the given level.
func WithCoordinator(c *Coordinator, level priority.Level) Option {
	return epubdoc.WithCoordinator(c, level)
}
