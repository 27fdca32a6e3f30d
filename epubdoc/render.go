package epubdoc

import (
	"fmt"

	"github.com/quillreader/quill/htmltext"
	"github.com/quillreader/quill/imagemeta"
)

// RasterRenderer is the drawing service the reader's display layer provides.
// It receives a verified image payload with its probed format and dimensions
// plus the layout box to fit; decoding pixels and scaling are its business,
// not this package's.
type RasterRenderer interface {
	Render(data []byte, info imagemeta.Info, maxWidth, maxHeight int) error
}

// RenderImage fetches an image reference's payload, verifies it is a
// recognizable raster format, and hands it to r. An unsupported or oversized
// image fails individually without affecting the resident chapter.
func (d *Document) RenderImage(ref htmltext.ImageRef, r RasterRenderer, maxWidth, maxHeight int) error {
	data, err := d.ImageData(ref)
	if err != nil {
		return err
	}
	info, err := imagemeta.Probe(data)
	if err != nil {
		return fmt.Errorf("epub: image %s: %w", ref.Path, err)
	}
	return r.Render(data, info, maxWidth, maxHeight)
}
