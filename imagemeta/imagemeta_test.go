package imagemeta

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
)

func encode(t *testing.T, format string, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	case "bmp":
		err = bmp.Encode(&buf, img)
	default:
		t.Fatalf("no encoder for %s", format)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func TestProbe(t *testing.T) {
	for _, format := range []string{"png", "jpeg", "gif", "bmp"} {
		info, err := Probe(encode(t, format, 17, 9))
		if err != nil {
			t.Errorf("Probe(%s) failed: %v", format, err)
			continue
		}
		if info.Format != format {
			t.Errorf("Probe(%s) identified as %q", format, info.Format)
		}
		if info.Width != 17 || info.Height != 9 {
			t.Errorf("Probe(%s) = %dx%d, want 17x9", format, info.Width, info.Height)
		}
	}
}

func TestProbeUnknownFormat(t *testing.T) {
	if _, err := Probe([]byte("this is not an image")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Probe(text) err = %v, want ErrUnknownFormat", err)
	}
	if _, err := Probe(nil); err == nil {
		t.Error("Probe(nil) succeeded")
	}
}
