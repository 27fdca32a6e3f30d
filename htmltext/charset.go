package htmltext

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// DetectEncoding reads the charset named by an XML declaration at the start
// of a chapter, from a small prefix of its bytes. It returns "" when no
// declaration is present or the document is already UTF-8.
func DetectEncoding(prefix []byte) string {
	if !bytes.HasPrefix(prefix, []byte("<?xml")) {
		return ""
	}
	end := bytes.Index(prefix, []byte("?>"))
	if end < 0 {
		end = len(prefix)
	}
	decl := string(prefix[:end])

	name := AttrValue(decl, "encoding")
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return ""
	}
	return name
}

// StreamDecoder converts a chapter's bytes to UTF-8 chunk by chunk. Chunk
// boundaries may split multi-byte sequences; the undecodable tail of each
// chunk is carried into the next call.
type StreamDecoder struct {
	tr  transform.Transformer
	src []byte
	dst []byte
}

// NewStreamDecoder returns a decoder for the IANA charset name taken from an
// XML declaration. Unknown names fail; the caller then reads the bytes as-is.
func NewStreamDecoder(charset string) (*StreamDecoder, error) {
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("htmltext: unknown charset %q", charset)
	}
	return &StreamDecoder{
		tr:  enc.NewDecoder(),
		dst: make([]byte, 4096),
	}, nil
}

// Decode converts one input chunk, returning UTF-8 bytes valid until the
// next call. A short final sequence is held back and completed by the next
// chunk.
func (d *StreamDecoder) Decode(chunk []byte) ([]byte, error) {
	d.src = append(d.src, chunk...)

	total := 0
	for {
		nDst, nSrc, err := d.tr.Transform(d.dst[total:], d.src, false)
		total += nDst
		d.src = d.src[nSrc:]

		switch err {
		case nil:
			// Everything consumed.
			d.src = nil
			return d.dst[:total], nil
		case transform.ErrShortSrc:
			// Tail of a multi-byte sequence; hold it for the next chunk.
			d.src = append([]byte(nil), d.src...)
			return d.dst[:total], nil
		case transform.ErrShortDst:
			grown := make([]byte, 2*len(d.dst))
			copy(grown, d.dst[:total])
			d.dst = grown
		default:
			return d.dst[:total], fmt.Errorf("htmltext: charset decode: %w", err)
		}
	}
}
