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

// Package nativemodel reduces a ninja build graph to the minimal set of
// named native build targets needed for packaging decisions: which shared
// libraries and executables exist, how to build each one, and which other
// packageable artifacts each drags along at runtime.
package nativemodel

import (
	"path/filepath"
	"strings"
)

// Target is one named native build output.
type Target struct {
	// ArtifactName is the human name computed from the output path,
	// e.g. "logic" for liblogic.so.
	ArtifactName string `json:"artifactName"`

	// Abi the model was generated for.
	Abi string `json:"abi,omitempty"`

	// Output is the artifact's path as it appears in the build graph.
	Output string `json:"output"`

	// BuildCommand builds exactly this target.
	BuildCommand []string `json:"buildCommand"`

	// RuntimeFiles are the packageable artifacts reachable from this
	// target, excluding the target itself and known system libraries.
	RuntimeFiles []string `json:"runtimeFiles,omitempty"`
}

// Model is the normalized description of one native build.
type Model struct {
	// CleanCommand removes all build outputs.
	CleanCommand []string `json:"cleanCommand"`

	// BuildFiles are the build-description files (inputs of the generator
	// edge) that should retrigger model generation when they change.
	BuildFiles []string `json:"buildFiles,omitempty"`

	// Targets maps artifact name to target. Names are unique; the name
	// "all" is reserved and never appears.
	Targets map[string]Target `json:"targets"`
}

// Config carries the caller-provided pieces the adapter cannot know itself.
type Config struct {
	// Abi tags every produced target.
	Abi string

	// CreateCommand expands build arguments (a target path, or the
	// literal "clean") into a concrete tool invocation.
	CreateCommand func(args []string) []string

	// IncludeBuildFile filters the build-description file list. Nil
	// includes everything.
	IncludeBuildFile func(path string) bool
}

// passthroughSuffix marks outputs whose real build action is delegated to
// an external tool invocation rather than the rule declared in the graph.
const passthroughSuffix = ".passthrough"

// reservedAllTarget is never used as a target name; it would shadow the
// build tool's own umbrella target.
const reservedAllTarget = "all"

// knownSystemLibs are on-device libraries that the loader provides. They are
// never part of a packaged artifact's runtime closure even when the graph
// links against them by path.
var knownSystemLibs = map[string]bool{
	"libc.so":              true,
	"libdl.so":             true,
	"liblog.so":            true,
	"libm.so":              true,
	"libstdc++.so":         true,
	"libz.so":              true,
	"libandroid.so":        true,
	"libjnigraphics.so":    true,
	"libEGL.so":            true,
	"libGLESv1_CM.so":      true,
	"libGLESv2.so":         true,
	"libGLESv3.so":         true,
	"libOpenMAXAL.so":      true,
	"libOpenSLES.so":       true,
	"libvulkan.so":         true,
	"libaaudio.so":         true,
	"libamidi.so":          true,
	"libbinder_ndk.so":     true,
	"libcamera2ndk.so":     true,
	"libmediandk.so":       true,
	"libnativewindow.so":   true,
	"libneuralnetworks.so": true,
	"libsync.so":           true,
}

// isPackageable reports whether a path names an artifact eligible for
// bundling: a shared library that is not a known system library, or a bare
// executable (no extension).
func isPackageable(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".so") {
		return !knownSystemLibs[base]
	}
	return filepath.Ext(base) == ""
}

// targetNameOf computes the human target name for an artifact path:
// basename, minus a .so/.a extension, minus a "lib" prefix when one is
// present and stripping it leaves a real name.
func targetNameOf(path string) string {
	base := filepath.Base(path)
	switch filepath.Ext(base) {
	case ".so", ".a":
		base = base[:len(base)-len(filepath.Ext(base))]
	}
	if strings.HasPrefix(base, "lib") && base != "lib" && !strings.HasPrefix(base, "lib.") {
		base = base[len("lib"):]
	}
	return base
}
