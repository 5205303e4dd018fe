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
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"android/cxxmeta/ninja"
	"android/cxxmeta/symbols"
)

// EdgeReader is the stream of build edges the adapter consumes, normally a
// *ninja.Reader.
type EdgeReader interface {
	Next() (*ninja.Edge, error)
}

// graph is the interned form of the build dependency graph, alive only for
// the duration of one Adapt call.
type graph struct {
	table *symbols.Table

	// edges maps each output symbol to its sorted input symbols. When the
	// same output is produced by more than one edge the later edge wins,
	// mirroring the underlying build tool.
	edges map[symbols.ID][]symbols.ID

	// reverse maps each input symbol to the outputs consuming it.
	reverse map[symbols.ID][]symbols.ID

	packageable map[symbols.ID]bool
	archives    map[symbols.ID]bool
	passthrough map[symbols.ID]bool
	buildFiles  map[symbols.ID]bool
}

// Adapt consumes the whole edge stream and produces the normalized build
// model for cfg.
func Adapt(r EdgeReader, cfg Config) (*Model, error) {
	if cfg.CreateCommand == nil {
		return nil, fmt.Errorf("nativemodel: Config.CreateCommand is required")
	}

	g := &graph{
		table:       symbols.NewTable(1),
		edges:       make(map[symbols.ID][]symbols.ID),
		reverse:     make(map[symbols.ID][]symbols.ID),
		packageable: make(map[symbols.ID]bool),
		archives:    make(map[symbols.ID]bool),
		passthrough: make(map[symbols.ID]bool),
		buildFiles:  make(map[symbols.ID]bool),
	}

	for {
		edge, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := g.addEdge(edge); err != nil {
			return nil, err
		}
	}
	g.buildReverse()

	passMap := g.passthroughMap()
	candidates := g.targetCandidates(passMap)

	targets := make(map[string]Target, len(candidates))
	for name, group := range candidates {
		winner := pickCandidate(group, g, passMap)
		target, err := g.makeTarget(name, winner, passMap, cfg)
		if err != nil {
			return nil, err
		}
		targets[name] = target
	}

	buildFiles, err := g.buildFileList(cfg)
	if err != nil {
		return nil, err
	}

	return &Model{
		CleanCommand: cfg.CreateCommand([]string{"clean"}),
		BuildFiles:   buildFiles,
		Targets:      targets,
	}, nil
}

// addEdge interns one edge into the graph and classifies its nodes.
func (g *graph) addEdge(edge *ninja.Edge) error {
	outs := edge.Outs()
	ins := edge.Ins()

	outIDs := make([]symbols.ID, len(outs))
	for i, out := range outs {
		id, err := g.table.Encode(out)
		if err != nil {
			return err
		}
		outIDs[i] = id
	}
	inIDs := make([]symbols.ID, 0, len(ins))
	for _, in := range ins {
		id, err := g.table.Encode(in)
		if err != nil {
			return err
		}
		inIDs = append(inIDs, id)
	}
	sort.Slice(inIDs, func(i, j int) bool { return inIDs[i] < inIDs[j] })
	inIDs = dedupe(inIDs)

	for _, out := range outIDs {
		g.edges[out] = inIDs
	}

	if edge.Generator() {
		// Inputs of the generator edge are the build-description files
		// themselves, not native artifacts.
		for _, in := range inIDs {
			g.buildFiles[in] = true
		}
		return nil
	}

	// Utility and meta edges ("clean", "help", umbrella aliases with no
	// real inputs) must not be classified.
	if edge.Rule == "phony" || len(inIDs) == 0 {
		return nil
	}

	if len(edge.ExplicitOuts) != 1 {
		return nil
	}
	out := edge.ExplicitOuts[0]
	outID := outIDs[0]
	base := filepath.Base(out)

	switch {
	case isPackageable(base):
		g.packageable[outID] = true
		for _, in := range ins {
			if isPackageable(in) {
				g.packageable[g.mustID(in)] = true
			}
		}
	case strings.HasSuffix(base, ".a"):
		g.archives[outID] = true
	case strings.HasSuffix(base, passthroughSuffix):
		g.passthrough[outID] = true
	}
	return nil
}

func (g *graph) mustID(s string) symbols.ID {
	id, _ := g.table.Lookup(s)
	return id
}

func (g *graph) buildReverse() {
	for out, ins := range g.edges {
		for _, in := range ins {
			g.reverse[in] = append(g.reverse[in], out)
		}
	}
}

// descendants walks the edge map forward from start, returning every node
// reachable through input edges, excluding start itself. The walk is a
// visited-set-guarded worklist so that cyclic or malformed graphs still
// terminate.
func (g *graph) descendants(start symbols.ID) []symbols.ID {
	return walk(start, func(id symbols.ID) []symbols.ID { return g.edges[id] })
}

// ancestors is the reverse walk: every node that transitively depends on
// start, excluding start itself.
func (g *graph) ancestors(start symbols.ID) []symbols.ID {
	return walk(start, func(id symbols.ID) []symbols.ID { return g.reverse[id] })
}

func walk(start symbols.ID, next func(symbols.ID) []symbols.ID) []symbols.ID {
	seen := map[symbols.ID]bool{start: true}
	queue := []symbols.ID{start}
	var out []symbols.ID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, n := range next(id) {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
			queue = append(queue, n)
		}
	}
	return out
}

// passthroughMap maps each node buildable through exactly one passthrough
// alias to that alias. Nodes reachable from two or more distinct aliases are
// ambiguous and dropped.
func (g *graph) passthroughMap() map[symbols.ID]symbols.ID {
	passMap := make(map[symbols.ID]symbols.ID)
	ambiguous := make(map[symbols.ID]bool)

	claim := func(node, alias symbols.ID) {
		if prev, ok := passMap[node]; ok && prev != alias {
			ambiguous[node] = true
			return
		}
		passMap[node] = alias
	}

	for _, alias := range sortedIDs(g.passthrough) {
		path, err := g.table.Decode(alias)
		if err != nil {
			continue
		}
		logical, ok := g.table.Lookup(strings.TrimSuffix(path, passthroughSuffix))
		if !ok {
			continue
		}
		claim(logical, alias)
		for _, d := range g.descendants(logical) {
			claim(d, alias)
		}
	}

	for node := range ambiguous {
		delete(passMap, node)
	}
	return passMap
}

// candidate pairs a node that may be named as a target with the root
// artifact it reaches.
type candidate struct {
	target symbols.ID
	output symbols.ID
}

// targetCandidates assigns candidate target names. Every root (packageable
// or archive artifact) names itself. A proper ancestor — an alias node that
// transitively depends on a root — additionally names the root it leads to,
// but only when it leads to exactly one: ancestors reachable from two or
// more roots are umbrella/aggregate nodes and are silently excluded, since
// naming them would misattribute shared build objects.
func (g *graph) targetCandidates(passMap map[symbols.ID]symbols.ID) map[string][]candidate {
	const multiple = symbols.ID(-1)
	owner := make(map[symbols.ID]symbols.ID)

	roots := make(map[symbols.ID]bool, len(g.packageable)+len(g.archives))
	for id := range g.packageable {
		roots[id] = true
	}
	for id := range g.archives {
		roots[id] = true
	}

	for _, root := range sortedIDs(roots) {
		for _, anc := range g.ancestors(root) {
			if roots[anc] {
				// Roots name themselves below; a root depending on
				// another root is not an alias for it.
				continue
			}
			if prev, ok := owner[anc]; ok && prev != root {
				owner[anc] = multiple
				continue
			}
			owner[anc] = root
		}
	}

	candidates := make(map[string][]candidate)
	add := func(anc, root symbols.ID) {
		path, err := g.table.Decode(anc)
		if err != nil || strings.HasSuffix(path, passthroughSuffix) {
			return
		}
		namePath := path
		if alias, ok := passMap[anc]; ok {
			if aliasPath, err := g.table.Decode(alias); err == nil {
				namePath = strings.TrimSuffix(aliasPath, passthroughSuffix)
			}
		}
		name := targetNameOf(namePath)
		if name == "" || name == reservedAllTarget {
			return
		}
		candidates[name] = append(candidates[name], candidate{target: anc, output: root})
	}

	for _, anc := range sortedKeys(owner) {
		if root := owner[anc]; root != multiple {
			add(anc, root)
		}
	}
	for _, root := range sortedIDs(roots) {
		add(root, root)
	}
	return candidates
}

// pickCandidate resolves a target-name collision: passthrough-buildable
// candidates win, then packageable ones, then archives, then the last one
// in (target, output) order. Candidates arrive pre-sorted by target id, so
// the fallback is deterministic.
func pickCandidate(group []candidate, g *graph, passMap map[symbols.ID]symbols.ID) candidate {
	best := group[0]
	bestPri := -1
	for _, c := range group {
		pri := 0
		switch {
		case passMap[c.target] != 0:
			pri = 3
		case g.packageable[c.target]:
			pri = 2
		case g.archives[c.target]:
			pri = 1
		}
		if pri >= bestPri {
			best, bestPri = c, pri
		}
	}
	return best
}

func (g *graph) makeTarget(name string, c candidate, passMap map[symbols.ID]symbols.ID, cfg Config) (Target, error) {
	output, err := g.table.Decode(c.output)
	if err != nil {
		return Target{}, err
	}

	var command []string
	if alias, ok := passMap[c.output]; ok {
		aliasPath, err := g.table.Decode(alias)
		if err != nil {
			return Target{}, err
		}
		command = cfg.CreateCommand([]string{aliasPath})
	} else {
		targetPath, err := g.table.Decode(c.target)
		if err != nil {
			return Target{}, err
		}
		command = cfg.CreateCommand([]string{targetPath})
	}

	var runtimeFiles []string
	for _, d := range g.descendants(c.target) {
		if !g.packageable[d] {
			continue
		}
		path, err := g.table.Decode(d)
		if err != nil {
			return Target{}, err
		}
		runtimeFiles = append(runtimeFiles, path)
	}
	sort.Strings(runtimeFiles)

	return Target{
		ArtifactName: name,
		Abi:          cfg.Abi,
		Output:       output,
		BuildCommand: command,
		RuntimeFiles: runtimeFiles,
	}, nil
}

func (g *graph) buildFileList(cfg Config) ([]string, error) {
	var files []string
	for _, id := range sortedIDs(g.buildFiles) {
		path, err := g.table.Decode(id)
		if err != nil {
			return nil, err
		}
		if cfg.IncludeBuildFile != nil && !cfg.IncludeBuildFile(path) {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

func dedupe(ids []symbols.ID) []symbols.ID {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}

func sortedIDs(set map[symbols.ID]bool) []symbols.ID {
	ids := make([]symbols.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedKeys(m map[symbols.ID]symbols.ID) []symbols.ID {
	ids := make([]symbols.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
