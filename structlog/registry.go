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
	"android/cxxmeta/symbols"
)

// Payload is one typed log event body. Implementations marshal themselves
// with the protobuf wire format and must tolerate unknown fields when
// unmarshaling, so that old readers can decode logs from newer writers.
type Payload interface {
	// TypeName is the stable fully-qualified name recorded in the log.
	TypeName() string
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// UnknownPayload stands in for a payload whose type name has no registered
// decoder, preserving only its identity and size. Decoding never fails on
// it; the stream stays aligned.
type UnknownPayload struct {
	// TypeID is the interned type name symbol from the log.
	TypeID symbols.ID

	// Size is the payload's byte length.
	Size int
}

func (u *UnknownPayload) TypeName() string                  { return "" }
func (u *UnknownPayload) MarshalBinary() ([]byte, error)    { return nil, nil }
func (u *UnknownPayload) UnmarshalBinary(data []byte) error { u.Size = len(data); return nil }

// Registry maps payload type names to constructors. Build one per process
// (or use DefaultRegistry) and pass it explicitly; there is no global
// registration side channel.
type Registry struct {
	types map[string]func() Payload
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]func() Payload)}
}

// Register adds a payload schema. Later registrations for the same name
// replace earlier ones.
func (r *Registry) Register(name string, fn func() Payload) {
	r.types[name] = fn
}

// New returns a fresh payload for name, or nil if the name is unknown.
func (r *Registry) New(name string) Payload {
	if fn, ok := r.types[name]; ok {
		return fn()
	}
	return nil
}

// DefaultRegistry returns a registry with every payload schema this package
// defines.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(BuildStepEventType, func() Payload { return &BuildStepEvent{} })
	r.Register(CacheQueryEventType, func() Payload { return &CacheQueryEvent{} })
	return r
}
