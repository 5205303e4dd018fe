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
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"android/cxxmeta/symbols"
)

// Extension is the file extension of structured log files inside a log
// folder; anything else in the folder is ignored.
const Extension = ".bin"

// Replay decodes every log file in dir (in filename-sorted order for
// determinism), filters events of the requested payload type, and applies
// fn to each while the file's symbol table is live — interned ids inside a
// payload are only meaningful against their own file's table. fn returns
// the transformed value and whether to keep it. Results are merged across
// files and sorted by the original wall-clock timestamp; the sort is stable,
// so equal timestamps keep file order.
func Replay[T any](dir, typeName string, reg *Registry, fn func(table *symbols.Table, event Event) (T, bool)) ([]T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type match struct {
		timestampMS int64
		value       T
	}
	var matches []match

	// os.ReadDir returns entries sorted by filename.
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		err := func() error {
			d, err := NewDecoder(filepath.Join(dir, entry.Name()), reg)
			if err != nil {
				return err
			}
			defer d.Close()
			for {
				event, err := d.Next()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if event.TypeName != typeName {
					continue
				}
				if value, ok := fn(d.Table(), *event); ok {
					matches = append(matches, match{timestampMS: event.TimestampMS, value: value})
				}
			}
		}()
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].timestampMS < matches[j].timestampMS
	})
	values := make([]T, len(matches))
	for i, m := range matches {
		values[i] = m.value
	}
	return values, nil
}

// Events is Replay without a transform: it returns the raw matching events
// in timestamp order.
func Events(dir, typeName string, reg *Registry) ([]Event, error) {
	return Replay(dir, typeName, reg, func(_ *symbols.Table, event Event) (Event, bool) {
		return event, true
	})
}
