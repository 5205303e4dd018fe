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

package depfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		output Deps
		err    string
	}{
		// These come from the ninja test suite
		{
			name:  "Basic",
			input: "build/ninja.o: ninja.cc ninja.h eval_env.h manifest_parser.h",
			output: Deps{
				Output: "build/ninja.o",
				Inputs: []string{
					"ninja.cc",
					"ninja.h",
					"eval_env.h",
					"manifest_parser.h",
				},
			},
		},
		{
			name: "EarlyNewlineAndWhitespace",
			input: ` \
  out: in`,
			output: Deps{
				Output: "out",
				Inputs: []string{"in"},
			},
		},
		{
			name: "Continuation",
			input: `foo.o: \
  bar.h baz.h
`,
			output: Deps{
				Output: "foo.o",
				Inputs: []string{"bar.h", "baz.h"},
			},
		},
		{
			name:  "CarriageReturnContinuation",
			input: "foo.o: \\\r\n  bar.h baz.h\r\n",
			output: Deps{
				Output: "foo.o",
				Inputs: []string{"bar.h", "baz.h"},
			},
		},
		{
			name:  "Spaces",
			input: `a\ bc\ def:   a\ b c d`,
			output: Deps{
				Output: `a bc def`,
				Inputs: []string{"a b", "c", "d"},
			},
		},
		{
			name:  "Escapes",
			input: `\!\@\#$$\%\^\&\\:`,
			output: Deps{
				Output: `\!\@#$\%\^\&\`,
			},
		},
		{
			name:  "WindowsDriveColon",
			input: `C\:/Program\ Files\ (x86)/crtdefs.h: C:\headers\foo.h`,
			output: Deps{
				Output: "C:/Program Files (x86)/crtdefs.h",
				Inputs: []string{`C:\headers\foo.h`},
			},
		},
		{
			name:  "SpaceBeforeColon",
			input: "out.o : in.c\n",
			output: Deps{
				Output: "out.o",
				Inputs: []string{"in.c"},
			},
		},
		{
			name: "MultipleRulesSameOutput",
			input: `foo.o: a.h
foo.o: b.h
foo.o: c.h`,
			output: Deps{
				Output: "foo.o",
				Inputs: []string{"a.h", "b.h", "c.h"},
			},
		},
		{
			name:  "MultipleDifferentOutputs",
			input: "a.o: x.h\nb.o: y.h\n",
			err:   `test.d: depfile has multiple outputs: "a.o" and "b.o"`,
		},
		{
			name:  "MissingColon",
			input: "out.o in.c\n",
			err:   `test.d: expected ':' after output "out.o"`,
		},
		{
			name: "Empty",
			err:  "test.d: empty depfile",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Parse("test.d", bytes.NewBufferString(tc.input))
			if tc.err != "" {
				if err == nil || err.Error() != tc.err {
					t.Fatalf("error = %v, want %q", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if diff := cmp.Diff(&tc.output, out, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("deps (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrintRoundTrip(t *testing.T) {
	orig := &Deps{
		Output: "out/model.json",
		Inputs: []string{
			"build.ninja",
			"path with spaces/rules.ninja",
			"odd:name.ninja",
			"cost$file.ninja",
		},
	}

	got, err := Parse("round.d", bytes.NewBuffer(orig.Print()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(orig, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.d")
	deps := &Deps{Output: "out/model.json", Inputs: []string{"build.ninja"}}
	if err := deps.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "out/model.json: build.ninja\n"; string(buf) != want {
		t.Errorf("file contents = %q, want %q", buf, want)
	}
}
