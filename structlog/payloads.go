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
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"android/cxxmeta/symbols"
)

// Built-in payload type names. These are wire-stable identifiers; renaming
// one orphans previously written logs.
const (
	BuildStepEventType  = "cxxmeta.BuildStepEvent"
	CacheQueryEventType = "cxxmeta.CacheQueryEvent"
)

// BuildStepEvent records one executed build edge, for attributing
// incremental build time.
type BuildStepEvent struct {
	// OutputID is the interned path of the edge's first explicit output.
	OutputID symbols.ID

	// RuleID is the interned rule name.
	RuleID symbols.ID

	DurationMS int64
}

func (*BuildStepEvent) TypeName() string { return BuildStepEventType }

func (e *BuildStepEvent) MarshalBinary() ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(e.OutputID))
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(e.RuleID))
	buf = protowire.AppendTag(buf, 3, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(e.DurationMS))
	return buf, nil
}

func (e *BuildStepEvent) UnmarshalBinary(data []byte) error {
	return consumeFields(data, func(num protowire.Number, v uint64) {
		switch num {
		case 1:
			e.OutputID = symbols.ID(int32(v))
		case 2:
			e.RuleID = symbols.ID(int32(v))
		case 3:
			e.DurationMS = int64(v)
		}
	})
}

// CacheQueryEvent records one compilation-cache probe.
type CacheQueryEvent struct {
	// KeyID is the interned cache key.
	KeyID symbols.ID

	Hit bool
}

func (*CacheQueryEvent) TypeName() string { return CacheQueryEventType }

func (e *CacheQueryEvent) MarshalBinary() ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(e.KeyID))
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	hit := uint64(0)
	if e.Hit {
		hit = 1
	}
	buf = protowire.AppendVarint(buf, hit)
	return buf, nil
}

func (e *CacheQueryEvent) UnmarshalBinary(data []byte) error {
	return consumeFields(data, func(num protowire.Number, v uint64) {
		switch num {
		case 1:
			e.KeyID = symbols.ID(int32(v))
		case 2:
			e.Hit = v != 0
		}
	})
}

// consumeFields walks a message of varint fields, handing each to fn and
// skipping anything else (unknown fields, other wire types).
func consumeFields(data []byte, fn func(num protowire.Number, v uint64)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("malformed payload tag: %v", protowire.ParseError(n))
		}
		data = data[n:]
		if typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("malformed payload field %d", num)
			}
			data = data[n:]
			fn(num, v)
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return fmt.Errorf("malformed payload field %d", num)
		}
		data = data[n:]
	}
	return nil
}
