// Package stream turns the raw bytes of a run's event feed into events:
// a Decoder reassembles newline-delimited frames across arbitrary chunk
// boundaries, and ParseLine interprets the frames that carry event data.
package stream

import (
	"bytes"
	"strings"
)

// Decoder splits an incoming byte stream into complete lines. Chunk
// boundaries are arbitrary: a chunk may split a line, hold several lines,
// or be empty. Bytes after the last newline are held until the next Feed.
// A trailing partial line at end of stream is simply never emitted; an
// unterminated frame cannot be a complete one.
type Decoder struct {
	pending []byte
}

// Feed appends chunk to the pending buffer and returns every complete
// line now available, in order, without the trailing newline. A lone
// "\r" before the newline is stripped. Malformed byte sequences pass
// through untouched; decoding is best-effort and never fails.
func (d *Decoder) Feed(chunk []byte) []string {
	d.pending = append(d.pending, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := string(d.pending[:i])
		d.pending = d.pending[i+1:]
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return lines
}
