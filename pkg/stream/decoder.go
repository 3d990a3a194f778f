package stream

import (
	"errors"
	"io"
	"iter"
	"strings"
	"unicode/utf8"
)

const defaultReadSize = 4096

// Decoder turns a byte stream into UTF-8 text chunks. A multi-byte
// character split across reads is held back and completed by the next read,
// so no chunk ever ends mid-character.
type Decoder struct {
	r       io.Reader
	buf     []byte
	pending []byte
	err     error
}

// NewDecoder creates a decoder reading at most readSize bytes per chunk.
// A non-positive readSize uses the default.
func NewDecoder(r io.Reader, readSize int) *Decoder {
	if readSize <= 0 {
		readSize = defaultReadSize
	}
	return &Decoder{
		r:   r,
		buf: make([]byte, readSize),
	}
}

// Next blocks until the next text chunk is available. It returns io.EOF
// once the source is exhausted; any other read error is returned unchanged.
func (d *Decoder) Next() (string, error) {
	for {
		if d.err != nil {
			if errors.Is(d.err, io.EOF) && len(d.pending) > 0 {
				tail := strings.ToValidUTF8(string(d.pending), string(utf8.RuneError))
				d.pending = nil
				return tail, nil
			}
			return "", d.err
		}

		n, err := d.r.Read(d.buf)
		if err != nil {
			d.err = err
		}
		if n == 0 {
			continue
		}

		data := append(d.pending, d.buf[:n]...)
		cut := completePrefix(data)
		d.pending = append([]byte(nil), data[cut:]...)
		if cut == 0 {
			continue
		}
		return strings.ToValidUTF8(string(data[:cut]), string(utf8.RuneError)), nil
	}
}

// All exposes the decoder as a single-use sequence. Iteration stops after
// the first error; io.EOF ends it silently.
func (d *Decoder) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			chunk, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// completePrefix returns the length of p without a trailing incomplete
// UTF-8 sequence.
func completePrefix(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if utf8.FullRune(p[i:]) {
			return len(p)
		}
		return i
	}
	return len(p)
}
