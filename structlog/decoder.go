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

	"android/cxxmeta/symbols"
)

// Event is one decoded typed record.
type Event struct {
	// TimestampMS is the writer's wall-clock time in Unix milliseconds.
	TimestampMS int64

	// TypeName is the payload's recorded type name. It is known even when
	// no decoder is registered for it.
	TypeName string

	// Payload is the decoded body, or *UnknownPayload when TypeName has
	// no registered schema.
	Payload Payload
}

// Decoder reads one structured log file. Interning records are consumed
// transparently; Next returns only typed events.
type Decoder struct {
	f     *os.File
	r     *bufio.Reader
	table *symbols.Table
	reg   *Registry

	// decoders caches type resolution for the session; the same type name
	// repeats across many records in one file.
	decoders map[symbols.ID]func() Payload
}

// NewDecoder opens a structured log file, verifying the magic header.
func NewDecoder(path string, reg *Registry) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReader(f)

	header := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, header); err != nil || !bytes.Equal(header, Magic) {
		f.Close()
		return nil, fmt.Errorf("%s: not a structured log file", path)
	}

	return &Decoder{
		f:        f,
		r:        r,
		table:    symbols.NewTable(1),
		reg:      reg,
		decoders: make(map[symbols.ID]func() Payload),
	}, nil
}

// Next returns the next typed event, or io.EOF when the log is exhausted.
// A truncated trailing record is end of stream, not an error.
func (d *Decoder) Next() (*Event, error) {
	for {
		rec, _, err := readRecord(d.r)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, io.EOF
		}

		switch {
		case rec.newString != nil:
			d.table.AddString(*rec.newString)
		case rec.newList != nil:
			d.table.AddList(rec.newList)
		case rec.header != nil:
			event, err := d.readPayload(rec.header)
			if err != nil {
				return nil, err
			}
			if event == nil {
				return nil, io.EOF
			}
			return event, nil
		}
	}
}

func (d *Decoder) readPayload(header *payloadHeader) (*Event, error) {
	size, n, err := readVarint(d.r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, nil
		}
		return nil, err
	}

	typeName, err := d.table.Decode(header.typeID)
	if err != nil {
		return nil, fmt.Errorf("payload with undeclared type id %d", header.typeID)
	}

	payload := d.newPayload(header.typeID, typeName)
	if err := payload.UnmarshalBinary(body); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", typeName, err)
	}

	return &Event{
		TimestampMS: header.timestampMS,
		TypeName:    typeName,
		Payload:     payload,
	}, nil
}

// newPayload resolves the decoder for a type id, caching the result. An
// unresolvable type degrades to UnknownPayload rather than failing, so
// logs written by newer versions still decode.
func (d *Decoder) newPayload(typeID symbols.ID, typeName string) Payload {
	if fn, ok := d.decoders[typeID]; ok {
		return fn()
	}
	fn := func() Payload { return &UnknownPayload{TypeID: typeID} }
	if d.reg != nil {
		if known := d.reg.New(typeName); known != nil {
			fn = func() Payload { return d.reg.New(typeName) }
		}
	}
	d.decoders[typeID] = fn
	return fn()
}

// Table exposes the symbol table reconstructed so far, for resolving the
// interned ids carried inside payloads.
func (d *Decoder) Table() *symbols.Table {
	return d.table
}

// Close releases the underlying file.
func (d *Decoder) Close() error {
	return d.f.Close()
}
