// Package container reads ZIP-format e-book containers under a bounded
// memory ceiling: the central directory is the only part of the archive held
// in memory, and entries are decompressed in small fixed-size chunks rather
// than loaded whole. Only the stored and deflate compression methods are
// supported.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/quillreader/quill/priority"
)

// Reader-related errors.
var (
	ErrInvalidArchive    = errors.New("container: invalid or corrupted archive")
	ErrEntryNotFound     = errors.New("container: entry not found")
	ErrBadLocalHeader    = errors.New("container: local header signature mismatch")
	ErrUnsupportedMethod = errors.New("container: unsupported compression method")
	ErrTooLarge          = errors.New("container: entry exceeds extraction limit")
)

// ZIP record signatures and layout constants.
const (
	eocdSignature = 0x06054b50
	cdSignature   = 0x02014b50
	lfhSignature  = 0x04034b50

	eocdMinSize  = 22
	cdHeaderSize = 46
	lfhFixedSize = 30

	// The EOCD comment is at most 65535 bytes, so the record is always
	// within the trailing 64KB of the file.
	maxCommentScan = 64 * 1024
	scanWindow     = 4096
)

// Supported compression methods.
const (
	MethodStored  uint16 = 0
	MethodDeflate uint16 = 8
)

// Entry describes one file in the archive. Names are byte sequences as
// stored in the central directory; they are not required to be valid UTF-8.
type Entry struct {
	Name             string
	Method           uint16
	CompressedSize   uint32
	UncompressedSize uint32

	headerOffset uint32
}

// Reader indexes an archive's central directory and streams entries out of
// it. The file is reopened per extraction; between calls no descriptor or
// scratch buffer is retained. A Reader is not safe for concurrent use.
type Reader struct {
	path    string
	size    int64
	entries []Entry // sorted by Name

	coord *priority.Coordinator
	level priority.Level
}

// Option configures a Reader.
type Option func(*Reader)

// WithCoordinator makes the reader's long loops checkpoint against c at the
// given level, so scans and decompression yield to higher-priority work.
func WithCoordinator(c *priority.Coordinator, level priority.Level) Option {
	return func(r *Reader) {
		r.coord = c
		r.level = level
	}
}

// Open indexes the archive at path. The end-of-central-directory record is
// located by scanning backward in bounded windows, the central directory is
// read in one contiguous allocation, and the resulting entry table is sorted
// by name for binary search.
func Open(path string, opts ...Option) (*Reader, error) {
	r := &Reader{path: path, level: priority.Low}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.parseCentralDirectory(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close discards the entry table. It is idempotent; a closed Reader behaves
// as an empty archive.
func (r *Reader) Close() error {
	r.entries = nil
	return nil
}

// Find locates an entry by exact name. Absence is not an error.
func (r *Reader) Find(name string) (Entry, bool) {
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].Name >= name
	})
	if i < len(r.entries) && r.entries[i].Name == name {
		return r.entries[i], true
	}
	return Entry{}, false
}

// Contains reports whether the archive holds an entry with the given name.
func (r *Reader) Contains(name string) bool {
	_, ok := r.Find(name)
	return ok
}

// UncompressedSize returns the declared uncompressed size of the named
// entry, or zero if the entry is absent.
func (r *Reader) UncompressedSize(name string) uint32 {
	e, ok := r.Find(name)
	if !ok {
		return 0
	}
	return e.UncompressedSize
}

// Names returns every entry name in sorted order.
func (r *Reader) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

func (r *Reader) checkpoint() {
	if r.coord != nil {
		r.coord.Checkpoint(r.level)
	}
}

func (r *Reader) parseCentralDirectory() error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("container: open %s: %w", r.path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("container: stat %s: %w", r.path, err)
	}
	r.size = st.Size()
	if r.size < eocdMinSize {
		return ErrInvalidArchive
	}

	eocdOff, err := r.findEOCD(f)
	if err != nil {
		return err
	}

	var eocd [eocdMinSize]byte
	if _, err := f.ReadAt(eocd[:], eocdOff); err != nil {
		return ErrInvalidArchive
	}
	count := int(binary.LittleEndian.Uint16(eocd[10:]))
	cdSize := binary.LittleEndian.Uint32(eocd[12:])
	cdOffset := binary.LittleEndian.Uint32(eocd[16:])

	if int64(cdOffset)+int64(cdSize) > r.size {
		return ErrInvalidArchive
	}

	// One contiguous read; the directory is immutable after parse.
	cd := make([]byte, cdSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, int64(cdOffset), int64(cdSize)), cd); err != nil {
		return ErrInvalidArchive
	}

	entries := make([]Entry, 0, count)
	p := 0
	for i := 0; i < count && p+cdHeaderSize <= len(cd); i++ {
		if binary.LittleEndian.Uint32(cd[p:]) != cdSignature {
			break
		}

		e := Entry{
			Method:           binary.LittleEndian.Uint16(cd[p+10:]),
			CompressedSize:   binary.LittleEndian.Uint32(cd[p+20:]),
			UncompressedSize: binary.LittleEndian.Uint32(cd[p+24:]),
			headerOffset:     binary.LittleEndian.Uint32(cd[p+42:]),
		}
		nameLen := int(binary.LittleEndian.Uint16(cd[p+28:]))
		extraLen := int(binary.LittleEndian.Uint16(cd[p+30:]))
		commentLen := int(binary.LittleEndian.Uint16(cd[p+32:]))

		nameEnd := p + cdHeaderSize + nameLen
		if nameEnd > len(cd) {
			break
		}
		e.Name = string(cd[p+cdHeaderSize : nameEnd])

		// Entries whose data region cannot lie within the file are dropped
		// rather than carried as landmines.
		if int64(e.headerOffset)+lfhFixedSize+int64(e.CompressedSize) <= r.size {
			entries = append(entries, e)
		}

		p = nameEnd + extraLen + commentLen
		if i&0x0F == 0 {
			r.checkpoint()
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	r.entries = entries
	return nil
}

// findEOCD scans backward from the end of the file for the EOCD signature,
// in windows of scanWindow bytes with a 3-byte overlap so a signature split
// across a window boundary is still found. The scan is bounded to the
// trailing maxCommentScan bytes.
func (r *Reader) findEOCD(f *os.File) (int64, error) {
	limit := int64(0)
	if r.size > maxCommentScan {
		limit = r.size - maxCommentScan
	}

	buf := make([]byte, scanWindow)
	pos := r.size
	for pos > limit {
		readSize := int64(scanWindow)
		if pos-readSize < limit {
			readSize = pos - limit
		}
		start := pos - readSize

		n, err := f.ReadAt(buf[:readSize], start)
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("container: read EOCD window: %w", err)
		}
		window := buf[:n]
		for i := len(window) - 4; i >= 0; i-- {
			if binary.LittleEndian.Uint32(window[i:]) == eocdSignature {
				off := start + int64(i)
				if off+eocdMinSize <= r.size {
					return off, nil
				}
			}
		}

		r.checkpoint()
		if start == 0 || start <= limit {
			break
		}
		pos = start + 3
	}
	return 0, ErrInvalidArchive
}

// entryNamed is Find plus a uniform not-found error, shared by the
// extraction paths.
func (r *Reader) entryNamed(name string) (Entry, error) {
	e, ok := r.Find(name)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, sanitizeName(name))
	}
	return e, nil
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return '?'
		}
		return r
	}, name)
}
