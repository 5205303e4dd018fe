// Copyright 2024 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package structlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"android/cxxmeta/symbols"
)

// Writer appends typed events to one structured log file. A file has a
// single writer at a time; concurrent writers must use distinct file paths.
// Writes are synchronous and record-at-a-time, so a crash loses at most the
// record being written.
type Writer struct {
	f     *os.File
	table *symbols.Table
	clock func() time.Time
}

// NewWriter opens path for appending, creating it with the magic header if
// it does not exist. Existing records are replayed to rebuild the symbol
// table; a torn trailing record from a crashed writer is truncated away so
// the appended stream stays decodable.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		f:     f,
		table: symbols.NewTable(1),
		clock: time.Now,
	}
	if err := w.replay(); err != nil {
		f.Close()
		return nil, err
	}

	w.table.OnNewString = func(id symbols.ID, s string) error {
		return w.writeAll(appendNewStringRecord(nil, s))
	}
	w.table.OnNewList = func(id symbols.ID, elements []symbols.ID) error {
		return w.writeAll(appendNewListRecord(nil, elements))
	}
	return w, nil
}

// replay scans the whole file, feeding string/list declarations into the
// table (without re-emitting them) and skipping payload bytes, then
// positions the file at the end of the last complete record.
func (w *Writer) replay() error {
	info, err := w.f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		if _, err := w.f.Write(Magic); err != nil {
			return err
		}
		return nil
	}

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r := bufio.NewReader(w.f)

	header := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, header); err != nil || !bytes.Equal(header, Magic) {
		return fmt.Errorf("%s: not a structured log file", w.f.Name())
	}

	end := int64(len(Magic))
	for {
		rec, consumed, err := readRecord(r)
		if err != nil {
			return err
		}
		if rec == nil {
			break
		}
		switch {
		case rec.newString != nil:
			w.table.AddString(*rec.newString)
		case rec.newList != nil:
			w.table.AddList(rec.newList)
		case rec.header != nil:
			// The payload body follows; measure and skip it without
			// parsing.
			size, n, err := readVarint(r)
			if err != nil {
				return err
			}
			if n == 0 {
				rec = nil
				break
			}
			skipped, err := io.CopyN(io.Discard, r, int64(size))
			if err != nil && err != io.EOF {
				return err
			}
			if skipped < int64(size) {
				rec = nil
				break
			}
			consumed += n + int(size)
		}
		if rec == nil {
			break
		}
		end += int64(consumed)
	}

	// Drop any torn trailing record before appending.
	if end < info.Size() {
		if err := w.f.Truncate(end); err != nil {
			return err
		}
	}
	_, err = w.f.Seek(end, io.SeekStart)
	return err
}

// Encode interns a string, emitting its NewString record on first use.
func (w *Writer) Encode(s string) (symbols.ID, error) {
	return w.table.Encode(s)
}

// EncodeList interns a string list, emitting element and list records as
// needed.
func (w *Writer) EncodeList(list []string) (symbols.ID, error) {
	return w.table.EncodeList(list)
}

// Write appends one typed event: a PayloadHeader record carrying the
// current wall-clock time and the interned payload type name, immediately
// followed by the length-delimited payload itself.
func (w *Writer) Write(p Payload) error {
	typeID, err := w.table.Encode(p.TypeName())
	if err != nil {
		return err
	}
	body, err := p.MarshalBinary()
	if err != nil {
		return err
	}

	buf := appendPayloadHeaderRecord(nil, w.clock().UnixMilli(), typeID)
	buf = protowire.AppendVarint(buf, uint64(len(body)))
	buf = append(buf, body...)
	return w.writeAll(buf)
}

// Close releases the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

func (w *Writer) writeAll(buf []byte) error {
	_, err := w.f.Write(buf)
	return err
}

// readRecord reads one length-delimited record. It returns (nil, 0, nil)
// when the stream ends cleanly or mid-record: a torn tail is "no more
// records", not an error.
func readRecord(r *bufio.Reader) (*record, int, error) {
	size, n, err := readVarint(r)
	if err != nil {
		return nil, 0, err
	}
	if n == 0 {
		return nil, 0, nil
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	rec, err := parseRecord(body)
	if err != nil {
		return nil, 0, err
	}
	return rec, n + int(size), nil
}

// readVarint reads a base-128 varint. A clean or mid-varint EOF reports
// n == 0 with no error; callers treat it as end of stream.
func readVarint(r *bufio.Reader) (uint64, int, error) {
	var v uint64
	n := 0
	for shift := uint(0); ; shift += 7 {
		if shift > 63 {
			return 0, 0, fmt.Errorf("varint overflows 64 bits")
		}
		b, err := r.ReadByte()
		if err == io.EOF {
			return 0, 0, nil
		}
		if err != nil {
			return 0, 0, err
		}
		n++
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, n, nil
		}
	}
}
