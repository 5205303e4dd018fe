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

package nativemodel

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "build.ninja")
	if err := os.WriteFile(path, []byte(content), 0666); err != nil {
		t.Fatal(err)
	}
	return path
}

func cacheConfig() Config {
	return Config{
		CreateCommand: func(args []string) []string {
			return append([]string{"ninja"}, args...)
		},
	}
}

func TestCacheReturnsSameModelForUnchangedManifest(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "build liba.so: LINK a.o\n")

	cache, err := NewCache(4)
	if err != nil {
		t.Fatal(err)
	}
	first, err := cache.GetOrAdapt(path, cacheConfig())
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.GetOrAdapt(path, cacheConfig())
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("unchanged manifest was re-adapted")
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
}

func TestCacheDetectsManifestChange(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "build liba.so: LINK a.o\n")

	cache, err := NewCache(4)
	if err != nil {
		t.Fatal(err)
	}
	first, err := cache.GetOrAdapt(path, cacheConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := first.Targets["a"]; !ok {
		t.Fatal("missing target a")
	}

	// Rewrite with different content; size change guarantees a new key
	// even on filesystems with coarse mtimes.
	writeManifest(t, dir, "build librenamed.so: LINK renamed.o\n")
	os.Chtimes(path, time.Now(), time.Now().Add(time.Second))

	second, err := cache.GetOrAdapt(path, cacheConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := second.Targets["renamed"]; !ok {
		t.Error("cache served a stale model after the manifest changed")
	}
}

func TestCacheClear(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "build liba.so: LINK a.o\n")

	cache, err := NewCache(4)
	if err != nil {
		t.Fatal(err)
	}
	first, err := cache.GetOrAdapt(path, cacheConfig())
	if err != nil {
		t.Fatal(err)
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len after Clear = %d", cache.Len())
	}
	second, err := cache.GetOrAdapt(path, cacheConfig())
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("Clear did not drop the cached model")
	}
}
