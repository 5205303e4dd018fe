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
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"android/cxxmeta/ninja"
)

// adapt runs the adapter over a manifest literal with a command synthesizer
// that prepends "ninja" to whatever it is asked to build.
func adapt(t *testing.T, manifest string, opts ...func(*Config)) *Model {
	t.Helper()
	cfg := Config{
		Abi: "arm64-v8a",
		CreateCommand: func(args []string) []string {
			return append([]string{"ninja"}, args...)
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	model, err := Adapt(ninja.NewReader("build.ninja", strings.NewReader(manifest)), cfg)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	return model
}

func targetNames(m *Model) []string {
	names := make([]string, 0, len(m.Targets))
	for name := range m.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestSimpleSharedLibrary(t *testing.T) {
	model := adapt(t, `
build liblogic.so: LINK a.o b.o
build a.o: CC a.c
`)

	if diff := cmp.Diff([]string{"logic"}, targetNames(model)); diff != "" {
		t.Fatalf("target names (-want +got):\n%s", diff)
	}
	target := model.Targets["logic"]
	if target.Output != "liblogic.so" {
		t.Errorf("Output = %q, want liblogic.so", target.Output)
	}
	if len(target.RuntimeFiles) != 0 {
		t.Errorf("RuntimeFiles = %v, want none (object files are not packageable)", target.RuntimeFiles)
	}
	if diff := cmp.Diff([]string{"ninja", "liblogic.so"}, target.BuildCommand); diff != "" {
		t.Errorf("BuildCommand (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ninja", "clean"}, model.CleanCommand); diff != "" {
		t.Errorf("CleanCommand (-want +got):\n%s", diff)
	}
	if target.Abi != "arm64-v8a" {
		t.Errorf("Abi = %q", target.Abi)
	}
}

func TestSharedDependencyExcluded(t *testing.T) {
	// common.o feeds both libraries; it must stay an internal node rather
	// than being attributed to either one.
	model := adapt(t, `
build libx.so: LINK x.o common.o
build liby.so: LINK y.o common.o
build common.o: CC common.c
`)

	if diff := cmp.Diff([]string{"x", "y"}, targetNames(model)); diff != "" {
		t.Fatalf("target names (-want +got):\n%s", diff)
	}
	if got := model.Targets["x"].Output; got != "libx.so" {
		t.Errorf("x output = %q", got)
	}
	if got := model.Targets["y"].Output; got != "liby.so" {
		t.Errorf("y output = %q", got)
	}
}

func TestRuntimeDependencyClosure(t *testing.T) {
	model := adapt(t, `
build libtop.so: LINK top.o libmid.so libc.so
build libmid.so: LINK mid.o libleaf.so
build libleaf.so: LINK leaf.o
`)

	top := model.Targets["top"]
	// libc.so is a known system library and must not appear.
	want := []string{"libleaf.so", "libmid.so"}
	if diff := cmp.Diff(want, top.RuntimeFiles); diff != "" {
		t.Errorf("top runtime files (-want +got):\n%s", diff)
	}
	mid := model.Targets["mid"]
	if diff := cmp.Diff([]string{"libleaf.so"}, mid.RuntimeFiles); diff != "" {
		t.Errorf("mid runtime files (-want +got):\n%s", diff)
	}
}

func TestSystemLibrariesNeverPackageable(t *testing.T) {
	model := adapt(t, `
build libapp.so: LINK app.o liblog.so libm.so libvulkan.so libcustom.so
build libcustom.so: LINK custom.o
`)

	app := model.Targets["app"]
	if diff := cmp.Diff([]string{"libcustom.so"}, app.RuntimeFiles); diff != "" {
		t.Errorf("runtime files (-want +got):\n%s", diff)
	}
	// System libraries also never become targets of their own.
	for _, name := range []string{"log", "m", "vulkan"} {
		if _, ok := model.Targets[name]; ok {
			t.Errorf("system library %q became a target", name)
		}
	}
}

func TestReservedAllName(t *testing.T) {
	// A non-phony aggregate whose output is literally "all" would compute
	// the reserved name; it must be dropped entirely.
	model := adapt(t, `
build all: AGGREGATE liba.so
build liba.so: LINK a.o
`)

	if _, ok := model.Targets[reservedAllTarget]; ok {
		t.Fatal(`target map contains reserved name "all"`)
	}
	if _, ok := model.Targets["a"]; !ok {
		t.Error("expected target a to survive")
	}
}

func TestUtilityEdgesNotClassified(t *testing.T) {
	model := adapt(t, `
build all: phony liba.so
build clean: CLEAN
build liba.so: LINK a.o
`)

	if diff := cmp.Diff([]string{"a"}, targetNames(model)); diff != "" {
		t.Errorf("target names (-want +got):\n%s", diff)
	}
}

func TestExecutableTarget(t *testing.T) {
	model := adapt(t, `
build bin/app_runner: LINK main.o libutil.so
build libutil.so: LINK util.o
`)

	if diff := cmp.Diff([]string{"app_runner", "util"}, targetNames(model)); diff != "" {
		t.Fatalf("target names (-want +got):\n%s", diff)
	}
	app := model.Targets["app_runner"]
	if app.Output != "bin/app_runner" {
		t.Errorf("Output = %q", app.Output)
	}
	if diff := cmp.Diff([]string{"libutil.so"}, app.RuntimeFiles); diff != "" {
		t.Errorf("runtime files (-want +got):\n%s", diff)
	}
}

func TestArchiveTarget(t *testing.T) {
	model := adapt(t, `
build libstatic.a: AR a.o b.o
`)

	if diff := cmp.Diff([]string{"static"}, targetNames(model)); diff != "" {
		t.Fatalf("target names (-want +got):\n%s", diff)
	}
	if got := model.Targets["static"].Output; got != "libstatic.a" {
		t.Errorf("Output = %q", got)
	}
}

func TestPassthroughPrecedence(t *testing.T) {
	// libwrapped.so is buildable directly and via the external-tool alias;
	// the alias command must win.
	model := adapt(t, `
build libwrapped.so.passthrough: EXTERNAL script.sh
build libwrapped.so: LINK wrapped.o
`)

	target, ok := model.Targets["wrapped"]
	if !ok {
		t.Fatalf("targets = %v, want wrapped", targetNames(model))
	}
	if diff := cmp.Diff([]string{"ninja", "libwrapped.so.passthrough"}, target.BuildCommand); diff != "" {
		t.Errorf("BuildCommand (-want +got):\n%s", diff)
	}
	if target.Output != "libwrapped.so" {
		t.Errorf("Output = %q", target.Output)
	}
}

func TestAmbiguousPassthroughDiscarded(t *testing.T) {
	// shared.o is reachable from two aliases, so neither may claim it.
	// The libraries themselves are each reachable from exactly one alias
	// and keep their passthrough commands.
	model := adapt(t, `
build liba.so.passthrough: EXTERNAL runa.sh
build libb.so.passthrough: EXTERNAL runb.sh
build liba.so: LINK shared.o
build libb.so: LINK shared.o
build shared.o: CC shared.c
`)

	a := model.Targets["a"]
	if diff := cmp.Diff([]string{"ninja", "liba.so.passthrough"}, a.BuildCommand); diff != "" {
		t.Errorf("a BuildCommand (-want +got):\n%s", diff)
	}
}

func TestGeneratorEdgeCollectsBuildFiles(t *testing.T) {
	manifest := `
rule GEN
  command = cmake -B .
  generator = 1

build build.ninja: GEN CMakeLists.txt cmake/toolchain.cmake CMakeCache.txt
build liba.so: LINK a.o
`

	model := adapt(t, manifest)
	want := []string{"CMakeCache.txt", "CMakeLists.txt", "cmake/toolchain.cmake"}
	if diff := cmp.Diff(want, model.BuildFiles); diff != "" {
		t.Errorf("build files (-want +got):\n%s", diff)
	}

	// The inclusion predicate filters generated files out.
	model = adapt(t, manifest, func(cfg *Config) {
		cfg.IncludeBuildFile = func(path string) bool {
			return path != "CMakeCache.txt"
		}
	})
	want = []string{"CMakeLists.txt", "cmake/toolchain.cmake"}
	if diff := cmp.Diff(want, model.BuildFiles); diff != "" {
		t.Errorf("filtered build files (-want +got):\n%s", diff)
	}
}

func TestDuplicateOutputLastEdgeWins(t *testing.T) {
	// Two edges produce libdup.so; the second one's inputs define the
	// runtime closure, mirroring the build tool's own behavior.
	model := adapt(t, `
build libdup.so: LINK old.o libold.so
build libdup.so: LINK new.o libnew.so
build libold.so: LINK o.o
build libnew.so: LINK n.o
`)

	dup := model.Targets["dup"]
	if diff := cmp.Diff([]string{"libnew.so"}, dup.RuntimeFiles); diff != "" {
		t.Errorf("runtime files (-want +got):\n%s", diff)
	}
}

func TestLibPrefixStrippingEdgeCases(t *testing.T) {
	testCases := []struct {
		path string
		name string
	}{
		{"out/liblogic.so", "logic"},
		{"libstatic.a", "static"},
		{"library.so", "rary"},
		{"lib.so", "lib"},
		{"lib.module.so", "lib.module"},
		{"bin/server", "server"},
	}
	for _, tt := range testCases {
		if got := targetNameOf(tt.path); got != tt.name {
			t.Errorf("targetNameOf(%q) = %q, want %q", tt.path, got, tt.name)
		}
	}
}

func TestCreateCommandRequired(t *testing.T) {
	_, err := Adapt(ninja.NewReader("build.ninja", strings.NewReader("")), Config{})
	if err == nil {
		t.Fatal("Adapt without CreateCommand succeeded")
	}
}
