/*
Copyright © 2022 - 2024 SUSE LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logtail implements the log-tail contract the TUI collaborator
// uses to follow the installer's shared log file: offset tracking with
// rotation detection, blank-line collapsing, ANSI-to-span parsing, and a
// bounded in-memory ring buffer.
package logtail

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/Azure/go-ansiterm"
)

// Span is one styled run of text parsed out of a line's ANSI escapes.
type Span struct {
	Text string
	Bold bool
	FG   int // -1 when unset
	BG   int // -1 when unset
}

// Line is one collapsed, span-parsed line appended to the ring buffer.
type Line struct {
	Spans []Span
}

// Reader tails a growing (and occasionally rotated) log file.
type Reader struct {
	path       string
	offset     int64
	ring       []Line
	ringLimit  int
	lastBlank  bool
}

// New builds a Reader over path, bounding its ring buffer to ringLimit
// lines (oldest evicted first).
func New(path string, ringLimit int) *Reader {
	return &Reader{path: path, ringLimit: ringLimit}
}

// Poll reads any bytes appended since the last call, appending parsed
// lines to the ring buffer and returning the lines newly added. A file
// smaller than the last known offset is treated as rotated: the reader
// resets to offset zero and re-reads from the start.
func (r *Reader) Poll() ([]Line, error) {
	file, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < r.offset {
		r.offset = 0
	}

	if _, err := file.Seek(r.offset, io.SeekStart); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var added []Line
	var read int64
	for scanner.Scan() {
		raw := scanner.Bytes()
		read += int64(len(raw)) + 1

		if len(bytes.TrimSpace(raw)) == 0 {
			if r.lastBlank {
				continue
			}
			r.lastBlank = true
		} else {
			r.lastBlank = false
		}

		line := Line{Spans: parseANSI(raw)}
		r.ring = append(r.ring, line)
		added = append(added, line)
	}
	if err := scanner.Err(); err != nil {
		return added, err
	}

	r.offset += read
	if r.ringLimit > 0 && len(r.ring) > r.ringLimit {
		r.ring = r.ring[len(r.ring)-r.ringLimit:]
	}
	return added, nil
}

// Lines returns a snapshot of the current ring buffer.
func (r *Reader) Lines() []Line {
	out := make([]Line, len(r.ring))
	copy(out, r.ring)
	return out
}

// spanHandler accumulates styled spans as go-ansiterm's parser walks a
// line's escape sequences, implementing just enough of ansiterm.AnsiEventHandler
// to track SGR-driven bold/foreground/background state.
type spanHandler struct {
	spans   []Span
	buf     bytes.Buffer
	bold    bool
	fg, bg  int
}

func newSpanHandler() *spanHandler {
	return &spanHandler{fg: -1, bg: -1}
}

func (h *spanHandler) flush() {
	if h.buf.Len() == 0 {
		return
	}
	h.spans = append(h.spans, Span{Text: h.buf.String(), Bold: h.bold, FG: h.fg, BG: h.bg})
	h.buf.Reset()
}

func (h *spanHandler) Print(b byte) error {
	h.buf.WriteByte(b)
	return nil
}
func (h *spanHandler) Execute(b byte) error { return nil }
func (h *spanHandler) CUU(int) error        { return nil }
func (h *spanHandler) CUD(int) error        { return nil }
func (h *spanHandler) CUF(int) error        { return nil }
func (h *spanHandler) CUB(int) error        { return nil }
func (h *spanHandler) CNL(int) error        { return nil }
func (h *spanHandler) CPL(int) error        { return nil }
func (h *spanHandler) CHA(int) error        { return nil }
func (h *spanHandler) VPA(int) error        { return nil }
func (h *spanHandler) CUP(int, int) error   { return nil }
func (h *spanHandler) HVP(int, int) error   { return nil }
func (h *spanHandler) DECTCEM(bool) error   { return nil }
func (h *spanHandler) DECOM(bool) error     { return nil }
func (h *spanHandler) DECCOLM(bool) error   { return nil }
func (h *spanHandler) ED(int) error         { return nil }
func (h *spanHandler) EL(int) error         { return nil }
func (h *spanHandler) IL(int) error         { return nil }
func (h *spanHandler) DL(int) error         { return nil }
func (h *spanHandler) ICH(int) error        { return nil }
func (h *spanHandler) DCH(int) error        { return nil }
func (h *spanHandler) SGR(params []int) error {
	h.flush()
	if len(params) == 0 {
		params = []int{0}
	}
	for _, p := range params {
		switch {
		case p == 0:
			h.bold, h.fg, h.bg = false, -1, -1
		case p == 1:
			h.bold = true
		case p >= 30 && p <= 37:
			h.fg = p - 30
		case p >= 40 && p <= 47:
			h.bg = p - 40
		case p == 39:
			h.fg = -1
		case p == 49:
			h.bg = -1
		}
	}
	return nil
}
func (h *spanHandler) SU(int) error  { return nil }
func (h *spanHandler) SD(int) error  { return nil }
func (h *spanHandler) DA([]string) error { return nil }
func (h *spanHandler) DECSTBM(int, int) error { return nil }
func (h *spanHandler) RI() error     { return nil }
func (h *spanHandler) IND() error    { return nil }
func (h *spanHandler) Flush() error  { return nil }

// parseANSI turns one raw log line into styled spans, stripping escape
// sequences from the text while preserving the style they encoded.
func parseANSI(raw []byte) []Span {
	handler := newSpanHandler()
	parser := ansiterm.CreateParser("Ground", handler)
	if _, err := parser.Parse(raw); err != nil {
		return []Span{{Text: string(raw), FG: -1, BG: -1}}
	}
	handler.flush()
	if len(handler.spans) == 0 {
		return []Span{{Text: "", FG: -1, BG: -1}}
	}
	return handler.spans
}
