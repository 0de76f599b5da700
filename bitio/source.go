package bitio

import (
	"io"
	"os"
)

// source abstracts the backing storage a Reader pulls bytes from.
// Three concrete flavors exist (buffer, file handle, stream); Reader's
// bit-level logic is identical over all three.
type source interface {
	// readAt fills buf from absolute byte offset pos. It returns the number
	// of bytes copied and an error if fewer than len(buf) bytes are
	// available.
	readAt(buf []byte, pos int64) (int, error)
	// size reports the total byte length and whether it could be
	// determined. A stream source drains and buffers everything that
	// remains to learn it.
	size() (int64, bool, error)
}

// bufferSource wraps an in-memory byte slice: seekable, synchronous, O(1)
// random access.
type bufferSource struct {
	data []byte
}

func newBufferSource(data []byte) *bufferSource { return &bufferSource{data: data} }

func (b *bufferSource) readAt(buf []byte, pos int64) (int, error) {
	if pos < 0 || pos > int64(len(b.data)) {
		return 0, decodeErrorf(pos, "read out of bounds")
	}
	n := copy(buf, b.data[pos:])
	if n < len(buf) {
		return n, decodeErrorf(pos+int64(n), "read out of bounds: need %d more byte(s)", len(buf)-n)
	}
	return n, nil
}

func (b *bufferSource) size() (int64, bool, error) { return int64(len(b.data)), true, nil }

// fileSource reads on demand from an *os.File via pread-style random access.
// Memory usage is O(1) plus a small read-ahead cache that absorbs the
// common case of several small sequential reads touching the same page.
type fileSource struct {
	f             *os.File
	cache         []byte
	cacheStart    int64
	knownSize     int64
	knownSizeSet  bool
}

const fileReadAheadBytes = 4096

func newFileSource(f *os.File) *fileSource {
	return &fileSource{f: f, cacheStart: -1}
}

func (s *fileSource) readAt(buf []byte, pos int64) (int, error) {
	if s.cacheStart >= 0 && pos >= s.cacheStart && pos+int64(len(buf)) <= s.cacheStart+int64(len(s.cache)) {
		n := copy(buf, s.cache[pos-s.cacheStart:])
		return n, nil
	}

	want := len(buf)
	if want < fileReadAheadBytes {
		want = fileReadAheadBytes
	}
	ahead := make([]byte, want)
	n, err := s.f.ReadAt(ahead, pos)
	if n > 0 {
		s.cache = ahead[:n]
		s.cacheStart = pos
	}
	if err != nil && err != io.EOF {
		return 0, decodeErrorf(pos, "file read failed: %v", err)
	}
	if n < len(buf) {
		got := copy(buf, ahead[:n])
		return got, decodeErrorf(pos+int64(got), "read out of bounds: need %d more byte(s)", len(buf)-got)
	}
	copy(buf, ahead[:len(buf)])
	return len(buf), nil
}

func (s *fileSource) size() (int64, bool, error) {
	if s.knownSizeSet {
		return s.knownSize, true, nil
	}
	info, err := s.f.Stat()
	if err != nil {
		return 0, false, decodeErrorf(0, "stat failed: %v", err)
	}
	s.knownSize = info.Size()
	s.knownSizeSet = true
	return s.knownSize, true, nil
}

// streamSource wraps a non-seekable io.Reader. Bytes consumed sequentially
// are retained in seen so a later backward peek can still be served without
// any extra I/O. Learning the stream's total length (needed to resolve a
// negative, from-end instance position) requires draining everything that
// remains, which is the one operation that pays for the whole-stream
// buffer and triggers the onWarn notice about its memory cost.
type streamSource struct {
	r       io.Reader
	seen    []byte
	eof     bool
	onWarn  func(string)
	warned  bool
}

func newStreamSource(r io.Reader, onWarn func(string)) *streamSource {
	return &streamSource{r: r, onWarn: onWarn}
}

func (s *streamSource) readAt(buf []byte, pos int64) (int, error) {
	end := pos + int64(len(buf))
	if end > int64(len(s.seen)) && !s.eof {
		need := end - int64(len(s.seen))
		chunk := make([]byte, need)
		n, err := io.ReadFull(s.r, chunk)
		s.seen = append(s.seen, chunk[:n]...)
		if err != nil {
			s.eof = true
		}
	}
	if pos < 0 || end > int64(len(s.seen)) {
		return 0, decodeErrorf(pos, "read out of bounds (stream exhausted)")
	}
	return copy(buf, s.seen[pos:end]), nil
}

func (s *streamSource) size() (int64, bool, error) {
	if !s.eof {
		s.drainRest()
	}
	return int64(len(s.seen)), true, nil
}

func (s *streamSource) drainRest() {
	if !s.warned {
		s.warned = true
		if s.onWarn != nil {
			s.onWarn("stream reader: buffering the entire remaining stream in memory to resolve a from-end position or total length")
		}
	}
	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize)
	for {
		n, err := s.r.Read(buf)
		if n > 0 {
			s.seen = append(s.seen, buf[:n]...)
		}
		if err != nil {
			s.eof = true
			return
		}
	}
}
