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

// Package symbols maps strings and ordered string lists to small dense
// integer identifiers and back. Strings and lists share one id namespace;
// ids are handed out sequentially starting from a caller-chosen first id.
package symbols

import (
	"fmt"
	"strconv"
	"strings"
)

// ID identifies one interned string or list. Zero is never a valid ID and
// is used as the unset sentinel.
type ID int32

type entry struct {
	str    string
	list   []ID
	isList bool
}

// Table is a bidirectional string/list interning table. It is not safe for
// concurrent use.
type Table struct {
	next    ID
	strings map[string]ID
	lists   map[string]ID
	entries map[ID]entry

	// OnNewString is invoked once per unique string, after the id is
	// assigned but before Encode returns it. A non-nil error aborts the
	// encode, but the assignment itself is kept so that the table and any
	// stream written so far stay consistent.
	OnNewString func(id ID, s string) error

	// OnNewList is the list counterpart of OnNewString. Element ids have
	// already been encoded (and reported) by the time it runs.
	OnNewList func(id ID, elements []ID) error
}

// NewTable returns an empty table whose first assigned id is firstID.
// Conventionally firstID is 1 so that 0 stays free as a sentinel.
func NewTable(firstID ID) *Table {
	return &Table{
		next:    firstID,
		strings: make(map[string]ID),
		lists:   make(map[string]ID),
		entries: make(map[ID]entry),
	}
}

// Encode returns the id for s, allocating the next sequential id on first
// encounter.
func (t *Table) Encode(s string) (ID, error) {
	if id, ok := t.strings[s]; ok {
		return id, nil
	}
	id := t.next
	t.next++
	t.strings[s] = id
	t.entries[id] = entry{str: s}
	if t.OnNewString != nil {
		if err := t.OnNewString(id, s); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// EncodeList returns the id for the list of strings, encoding each element
// first so that element ids are always declared before the list that uses
// them.
func (t *Table) EncodeList(list []string) (ID, error) {
	ids := make([]ID, len(list))
	for i, s := range list {
		id, err := t.Encode(s)
		if err != nil {
			return 0, err
		}
		ids[i] = id
	}
	key := listKey(ids)
	if id, ok := t.lists[key]; ok {
		return id, nil
	}
	id := t.next
	t.next++
	t.lists[key] = id
	t.entries[id] = entry{list: ids, isList: true}
	if t.OnNewList != nil {
		if err := t.OnNewList(id, ids); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Decode returns the string for id. Unknown or list ids are errors, never
// defaulted: a miss here means the caller is reading a corrupt stream.
func (t *Table) Decode(id ID) (string, error) {
	e, ok := t.entries[id]
	if !ok {
		return "", fmt.Errorf("unknown symbol id %d", id)
	}
	if e.isList {
		return "", fmt.Errorf("symbol id %d is a list, not a string", id)
	}
	return e.str, nil
}

// DecodeList returns the strings for a list id.
func (t *Table) DecodeList(id ID) ([]string, error) {
	e, ok := t.entries[id]
	if !ok {
		return nil, fmt.Errorf("unknown symbol id %d", id)
	}
	if !e.isList {
		return nil, fmt.Errorf("symbol id %d is a string, not a list", id)
	}
	list := make([]string, len(e.list))
	for i, el := range e.list {
		s, err := t.Decode(el)
		if err != nil {
			return nil, err
		}
		list[i] = s
	}
	return list, nil
}

// Lookup returns the id for s if it has already been interned, without
// interning it.
func (t *Table) Lookup(s string) (ID, bool) {
	id, ok := t.strings[s]
	return id, ok
}

// Len returns the number of interned symbols (strings and lists together).
func (t *Table) Len() int {
	return len(t.entries)
}

// AddString records a string id assignment without running callbacks. Used
// when rebuilding a table by replaying a previously written stream.
func (t *Table) AddString(s string) ID {
	if id, ok := t.strings[s]; ok {
		return id
	}
	id := t.next
	t.next++
	t.strings[s] = id
	t.entries[id] = entry{str: s}
	return id
}

// AddList is the replay counterpart of AddString. The element ids must have
// been declared earlier in the stream.
func (t *Table) AddList(ids []ID) ID {
	key := listKey(ids)
	if id, ok := t.lists[key]; ok {
		return id
	}
	id := t.next
	t.next++
	t.lists[key] = id
	t.entries[id] = entry{list: append([]ID(nil), ids...), isList: true}
	return id
}

func listKey(ids []ID) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(int64(id), 10))
	}
	return sb.String()
}
