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

	lru "github.com/hashicorp/golang-lru/v2"

	"android/cxxmeta/ninja"
)

// cacheKey identifies one manifest revision. A manifest that is rewritten
// in place gets a new key through its size/mtime.
type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

// Cache memoizes adapted models by manifest identity so long-lived callers
// don't re-parse unchanged manifests. Construct one per orchestrator
// session.
type Cache struct {
	models *lru.Cache[cacheKey, *Model]
}

// NewCache returns a cache holding at most capacity models.
func NewCache(capacity int) (*Cache, error) {
	models, err := lru.New[cacheKey, *Model](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{models: models}, nil
}

// GetOrAdapt returns the cached model for the manifest at path, adapting it
// on a miss or whenever the file on disk has changed.
func (c *Cache) GetOrAdapt(path string, cfg Config) (*Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if model, ok := c.models.Get(key); ok {
		return model, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	model, err := Adapt(ninja.NewReader(path, f), cfg)
	if err != nil {
		return nil, err
	}
	c.models.Add(key, model)
	return model, nil
}

// Len returns the number of cached models.
func (c *Cache) Len() int {
	return c.models.Len()
}

// Clear drops every cached model.
func (c *Cache) Clear() {
	c.models.Purge()
}
