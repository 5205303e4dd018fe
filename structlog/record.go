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

// Package structlog reads and writes the C/C++ structured log: an
// append-only, self-describing binary event file used to diagnose caching
// and incremental-build behavior. A log is a magic header followed by
// length-delimited protobuf records; strings and lists are interned into a
// per-file symbol table declared inline by NewString/NewList records.
package structlog

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"android/cxxmeta/symbols"
)

// Magic identifies a structured log file. It is written once at creation
// and verified byte-for-byte on every open.
var Magic = []byte("C/C++ Structured Log\x1a")

// Top-level record fields. Exactly one is set per record.
const (
	fieldNewString     = protowire.Number(1)
	fieldNewList       = protowire.Number(2)
	fieldPayloadHeader = protowire.Number(3)
)

// NewString fields.
const newStringData = protowire.Number(1)

// NewList fields.
const newListData = protowire.Number(1)

// PayloadHeader fields.
const (
	payloadTimestampMS = protowire.Number(1)
	payloadTypeID      = protowire.Number(2)
)

// record is the decoded form of one top-level log record.
type record struct {
	// Exactly one of the three groups is populated.
	newString *string
	newList   []symbols.ID
	header    *payloadHeader
}

type payloadHeader struct {
	timestampMS int64
	typeID      symbols.ID
}

// appendNewStringRecord appends a length-delimited NewString record.
func appendNewStringRecord(buf []byte, s string) []byte {
	inner := protowire.AppendTag(nil, newStringData, protowire.BytesType)
	inner = protowire.AppendString(inner, s)

	rec := protowire.AppendTag(nil, fieldNewString, protowire.BytesType)
	rec = protowire.AppendBytes(rec, inner)
	return protowire.AppendBytes(buf, rec)
}

// appendNewListRecord appends a length-delimited NewList record. Element
// ids are packed varints.
func appendNewListRecord(buf []byte, elements []symbols.ID) []byte {
	var packed []byte
	for _, id := range elements {
		packed = protowire.AppendVarint(packed, uint64(id))
	}
	inner := protowire.AppendTag(nil, newListData, protowire.BytesType)
	inner = protowire.AppendBytes(inner, packed)

	rec := protowire.AppendTag(nil, fieldNewList, protowire.BytesType)
	rec = protowire.AppendBytes(rec, inner)
	return protowire.AppendBytes(buf, rec)
}

// appendPayloadHeaderRecord appends a length-delimited PayloadHeader record.
func appendPayloadHeaderRecord(buf []byte, timestampMS int64, typeID symbols.ID) []byte {
	inner := protowire.AppendTag(nil, payloadTimestampMS, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(timestampMS))
	inner = protowire.AppendTag(inner, payloadTypeID, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(typeID))

	rec := protowire.AppendTag(nil, fieldPayloadHeader, protowire.BytesType)
	rec = protowire.AppendBytes(rec, inner)
	return protowire.AppendBytes(buf, rec)
}

// parseRecord decodes one record body (already stripped of its length
// prefix). Unknown fields are skipped so newer writers stay readable.
func parseRecord(body []byte) (*record, error) {
	rec := &record{}
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, fmt.Errorf("malformed record tag: %v", protowire.ParseError(n))
		}
		body = body[n:]

		if typ != protowire.BytesType && num <= fieldPayloadHeader {
			return nil, fmt.Errorf("record field %d has wire type %d, want bytes", num, typ)
		}

		switch num {
		case fieldNewString:
			inner, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, fmt.Errorf("malformed NewString: %v", protowire.ParseError(n))
			}
			body = body[n:]
			s, err := parseNewString(inner)
			if err != nil {
				return nil, err
			}
			rec.newString = &s
		case fieldNewList:
			inner, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, fmt.Errorf("malformed NewList: %v", protowire.ParseError(n))
			}
			body = body[n:]
			list, err := parseNewList(inner)
			if err != nil {
				return nil, err
			}
			rec.newList = list
		case fieldPayloadHeader:
			inner, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, fmt.Errorf("malformed PayloadHeader: %v", protowire.ParseError(n))
			}
			body = body[n:]
			header, err := parsePayloadHeader(inner)
			if err != nil {
				return nil, err
			}
			rec.header = header
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return nil, fmt.Errorf("malformed record field %d: %v", num, protowire.ParseError(n))
			}
			body = body[n:]
		}
	}
	if rec.newString == nil && rec.newList == nil && rec.header == nil {
		return nil, fmt.Errorf("record has no variant set")
	}
	return rec, nil
}

func parseNewString(body []byte) (string, error) {
	var out string
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return "", fmt.Errorf("malformed NewString tag")
		}
		body = body[n:]
		if num == newStringData && typ == protowire.BytesType {
			s, n := protowire.ConsumeString(body)
			if n < 0 {
				return "", fmt.Errorf("malformed NewString data")
			}
			body = body[n:]
			out = s
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, body)
		if n < 0 {
			return "", fmt.Errorf("malformed NewString field %d", num)
		}
		body = body[n:]
	}
	return out, nil
}

func parseNewList(body []byte) ([]symbols.ID, error) {
	// Non-nil even when empty: an empty interned list is still a record.
	out := []symbols.ID{}
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, fmt.Errorf("malformed NewList tag")
		}
		body = body[n:]
		switch {
		case num == newListData && typ == protowire.BytesType:
			// Packed encoding.
			packed, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, fmt.Errorf("malformed NewList data")
			}
			body = body[n:]
			for len(packed) > 0 {
				v, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return nil, fmt.Errorf("malformed NewList element")
				}
				packed = packed[n:]
				out = append(out, symbols.ID(int32(v)))
			}
		case num == newListData && typ == protowire.VarintType:
			// Unpacked encoding, accepted for compatibility.
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, fmt.Errorf("malformed NewList element")
			}
			body = body[n:]
			out = append(out, symbols.ID(int32(v)))
		default:
			n = protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return nil, fmt.Errorf("malformed NewList field %d", num)
			}
			body = body[n:]
		}
	}
	return out, nil
}

func parsePayloadHeader(body []byte) (*payloadHeader, error) {
	header := &payloadHeader{}
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, fmt.Errorf("malformed PayloadHeader tag")
		}
		body = body[n:]
		if typ == protowire.VarintType && (num == payloadTimestampMS || num == payloadTypeID) {
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, fmt.Errorf("malformed PayloadHeader field %d", num)
			}
			body = body[n:]
			if num == payloadTimestampMS {
				header.timestampMS = int64(v)
			} else {
				header.typeID = symbols.ID(int32(v))
			}
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, body)
		if n < 0 {
			return nil, fmt.Errorf("malformed PayloadHeader field %d", num)
		}
		body = body[n:]
	}
	return header, nil
}
