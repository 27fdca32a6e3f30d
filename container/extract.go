package container

import (
	"bufio"
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Extraction limits. Declared sizes in a hostile archive can lie, so the
// caps are enforced on actual output, not on the directory's claims.
const (
	// MaxTextOutput bounds whole-entry extraction (chapter markup,
	// descriptors). A legitimate chapter is tens to hundreds of KB.
	MaxTextOutput = 2 * 1024 * 1024
	// MaxBinaryOutput bounds binary extraction (image payloads).
	MaxBinaryOutput = 5 * 1024 * 1024

	inChunk  = 2048
	outChunk = 4096
)

// Control is a streaming sink's verdict after each chunk.
type Control int

const (
	// Continue requests the next chunk.
	Continue Control = iota
	// Stop ends delivery early. Stopping is a deliberate, successful
	// abort, not a failure.
	Stop
)

// Sink receives decompressed chunks during streaming extraction. The chunk
// slice is reused between calls; implementations must copy any bytes they
// keep.
type Sink func(chunk []byte) Control

// Outcome reports how a streaming extraction ended, so callers can tell a
// sink-requested stop apart from normal completion.
type Outcome int

const (
	// OutcomeComplete means the whole entry was delivered.
	OutcomeComplete Outcome = iota
	// OutcomeStopped means the sink ended delivery early.
	OutcomeStopped
)

// Extract returns an entry's full decompressed contents. Output larger than
// MaxTextOutput aborts with ErrTooLarge, as a guard against corrupt
// directories and zip bombs.
func (r *Reader) Extract(name string) ([]byte, error) {
	return r.extractCapped(name, MaxTextOutput, false)
}

// ExtractBinary returns an entry's contents for non-text payloads such as
// images. Entries declaring more than MaxBinaryOutput bytes are refused
// outright.
func (r *Reader) ExtractBinary(name string) ([]byte, error) {
	e, err := r.entryNamed(name)
	if err != nil {
		return nil, err
	}
	if e.UncompressedSize > MaxBinaryOutput {
		return nil, fmt.Errorf("%w: %s declares %d bytes", ErrTooLarge, sanitizeName(name), e.UncompressedSize)
	}
	return r.extractCapped(name, MaxBinaryOutput, true)
}

func (r *Reader) extractCapped(name string, limit int, presizeFull bool) ([]byte, error) {
	e, err := r.entryNamed(name)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if n := int(e.UncompressedSize); n > 0 && n <= limit {
		buf.Grow(n)
	} else if !presizeFull {
		buf.Grow(outChunk)
	}

	overCap := false
	_, err = r.stream(e, func(chunk []byte) Control {
		if buf.Len()+len(chunk) > limit {
			overCap = true
			return Stop
		}
		buf.Write(chunk)
		return Continue
	})
	if err != nil {
		return nil, err
	}
	if overCap {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, sanitizeName(name))
	}
	return buf.Bytes(), nil
}

// ExtractStreaming decompresses the named entry chunk by chunk into sink.
// The sink returning Stop ends the pump early with OutcomeStopped and a nil
// error; the entry is then only partially delivered. This is the primary
// path for chapter markup, which is never materialized whole.
func (r *Reader) ExtractStreaming(name string, sink Sink) (Outcome, error) {
	e, err := r.entryNamed(name)
	if err != nil {
		return OutcomeComplete, err
	}
	return r.stream(e, sink)
}

// Peek returns up to max bytes from the start of an entry's decompressed
// stream. For deflate entries the decompressor stops as soon as enough
// output exists.
func (r *Reader) Peek(name string, max int) ([]byte, error) {
	e, err := r.entryNamed(name)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, nil
	}

	out := make([]byte, 0, max)
	_, err = r.stream(e, func(chunk []byte) Control {
		need := max - len(out)
		if len(chunk) > need {
			chunk = chunk[:need]
		}
		out = append(out, chunk...)
		if len(out) >= max {
			return Stop
		}
		return Continue
	})
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return out, nil
}

func (r *Reader) stream(e Entry, sink Sink) (Outcome, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return OutcomeComplete, fmt.Errorf("container: open %s: %w", r.path, err)
	}
	defer f.Close()

	dataOff, err := dataOffset(f, e)
	if err != nil {
		return OutcomeComplete, err
	}
	if e.CompressedSize == 0 {
		return OutcomeComplete, nil
	}
	data := io.NewSectionReader(f, dataOff, int64(e.CompressedSize))

	switch e.Method {
	case MethodStored:
		return r.pumpStored(data, sink)
	case MethodDeflate:
		return r.pumpDeflate(data, sink)
	default:
		return OutcomeComplete, fmt.Errorf("%w: %d", ErrUnsupportedMethod, e.Method)
	}
}

// dataOffset reads the entry's local file header and returns the offset of
// its first data byte. The name and extra lengths live 22 and 24 bytes past
// the 4-byte signature.
func dataOffset(f *os.File, e Entry) (int64, error) {
	var hdr [lfhFixedSize]byte
	if _, err := f.ReadAt(hdr[:], int64(e.headerOffset)); err != nil {
		return 0, ErrBadLocalHeader
	}
	if binary.LittleEndian.Uint32(hdr[0:]) != lfhSignature {
		return 0, ErrBadLocalHeader
	}
	nameLen := int64(binary.LittleEndian.Uint16(hdr[26:]))
	extraLen := int64(binary.LittleEndian.Uint16(hdr[28:]))
	return int64(e.headerOffset) + lfhFixedSize + nameLen + extraLen, nil
}

func (r *Reader) pumpStored(data io.Reader, sink Sink) (Outcome, error) {
	buf := make([]byte, inChunk)
	for {
		n, err := data.Read(buf)
		if n > 0 {
			if sink(buf[:n]) == Stop {
				return OutcomeStopped, nil
			}
			r.checkpoint()
		}
		if err == io.EOF {
			return OutcomeComplete, nil
		}
		if err != nil {
			return OutcomeComplete, fmt.Errorf("container: read stored entry: %w", err)
		}
	}
}

func (r *Reader) pumpDeflate(data io.Reader, sink Sink) (Outcome, error) {
	// Raw deflate, no zlib/gzip wrapper; input is pulled in inChunk-sized
	// reads, output drained in outChunk-sized slices.
	fr := flate.NewReader(bufio.NewReaderSize(data, inChunk))
	defer fr.Close()

	out := make([]byte, outChunk)
	for {
		n, err := fr.Read(out)
		if n > 0 {
			if sink(out[:n]) == Stop {
				return OutcomeStopped, nil
			}
			r.checkpoint()
		}
		if err == io.EOF {
			return OutcomeComplete, nil
		}
		if err != nil {
			// A truncated stream still delivered its partial output
			// through the sink before landing here.
			return OutcomeComplete, fmt.Errorf("container: inflate: %w", err)
		}
	}
}
