// Package imagemeta identifies image payloads pulled out of a book container
// and reports their pixel dimensions, without decoding pixel data. Renderers
// use it to size layout boxes and to refuse formats they cannot draw.
package imagemeta

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrUnknownFormat is returned for payloads no registered decoder claims.
var ErrUnknownFormat = errors.New("imagemeta: unrecognized image format")

// Info describes an image payload. Format is the registered decoder name
// ("jpeg", "png", "gif", "bmp", "webp").
type Info struct {
	Format string
	Width  int
	Height int
}

// Probe reads just enough of data to identify the format and dimensions.
func Probe(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Info{}, ErrUnknownFormat
		}
		return Info{}, fmt.Errorf("imagemeta: %w", err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
