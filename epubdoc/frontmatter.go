package epubdoc

import (
	"strings"

	"github.com/quillreader/quill/container"
)

const (
	// frontMatterSample bounds how much decompressed markup the skip check
	// reads per chapter.
	frontMatterSample = 2048

	// A page whose whole sample is under this many bytes is short enough
	// that a bare "contents" or "dedication" identifies it.
	shortPageBytes = 500

	// maxFrontMatterSkip caps how many leading chapters the heuristic may
	// pass over.
	maxFrontMatterSkip = 5
)

// frontMatterStart returns the index of the first chapter that does not look
// like front matter. The last chapter is never skipped, so a book that is all
// front matter still opens somewhere.
func (d *Document) frontMatterStart() int {
	if len(d.pkg.spine) <= 1 {
		return 0
	}

	maxSkip := len(d.pkg.spine) - 1
	if maxSkip > maxFrontMatterSkip {
		maxSkip = maxFrontMatterSkip
	}

	start := 0
	for i := 0; i < maxSkip; i++ {
		if !d.chapterSkippable(i) {
			break
		}
		start++
	}
	return start
}

// chapterSkippable samples the start of a chapter's decompressed markup and
// looks for front-matter fingerprints. "contents" and "dedication" alone are
// too common in body text; they only count on a very short page.
func (d *Document) chapterSkippable(index int) bool {
	var sample []byte
	d.archive.ExtractStreaming(d.pkg.spine[index].Path, func(chunk []byte) container.Control {
		sample = append(sample, chunk...)
		if len(sample) > frontMatterSample {
			return container.Stop
		}
		return container.Continue
	})

	lower := strings.ToLower(string(sample))
	switch {
	case strings.Contains(lower, "cover img"),
		strings.Contains(lower, "copyright"),
		strings.Contains(lower, "table of contents"):
		return true
	case len(lower) < shortPageBytes &&
		(strings.Contains(lower, "contents") || strings.Contains(lower, "dedication")):
		return true
	}
	return false
}
