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

// This tool reads a ninja build manifest and writes the native build model
// derived from it: the packageable targets, their runtime dependency
// closures, and the build commands to produce them, as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"android/cxxmeta/depfile"
	"android/cxxmeta/nativemodel"
	"android/cxxmeta/ninja"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <build.ninja>\n", os.Args[0])
		flag.PrintDefaults()
	}
	output := flag.String("o", "", "Output file for the JSON model (defaults to stdout)")
	abi := flag.String("abi", "", "ABI the manifest was generated for (e.g. arm64-v8a)")
	ninjaBin := flag.String("ninja", "ninja", "Path to the ninja binary recorded in build commands")
	buildDir := flag.String("C", "", "Build directory passed to ninja in build commands (defaults to the manifest's directory)")
	depFile := flag.String("d", "", "Optional depfile to write, recording the manifest as an input of the model")
	buildFileNames := flag.String("build-file-names", "", "Comma-separated base names to keep in buildFiles (empty keeps everything)")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	manifest := flag.Arg(0)

	dir := *buildDir
	if dir == "" {
		dir = filepath.Dir(manifest)
	}

	config := nativemodel.Config{
		Abi: *abi,
		CreateCommand: func(args []string) []string {
			return append([]string{*ninjaBin, "-C", dir}, args...)
		},
	}
	if *buildFileNames != "" {
		keep := make(map[string]bool)
		for _, name := range strings.Split(*buildFileNames, ",") {
			keep[name] = true
		}
		config.IncludeBuildFile = func(path string) bool {
			return keep[filepath.Base(path)]
		}
	}

	f, err := os.Open(manifest)
	if err != nil {
		log.Fatalf("Error opening %q: %v", manifest, err)
	}
	defer f.Close()

	model, err := nativemodel.Adapt(ninja.NewReader(manifest, f), config)
	if err != nil {
		log.Fatalf("Failed to adapt %q: %v", manifest, err)
	}

	buf, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal model: %v", err)
	}
	buf = append(buf, '\n')

	if *output == "" {
		os.Stdout.Write(buf)
	} else {
		if err := os.WriteFile(*output, buf, 0666); err != nil {
			log.Fatalf("Failed to write %q: %v", *output, err)
		}
	}

	if *depFile != "" {
		out := *output
		if out == "" {
			out = "-"
		}
		deps := &depfile.Deps{Output: out, Inputs: []string{manifest}}
		if err := deps.WriteFile(*depFile); err != nil {
			log.Fatalf("Failed to write depfile %q: %v", *depFile, err)
		}
	}
}
