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

// Package depfile reads and writes gcc-style dependency files in the
// subset that ninja's depfile reader accepts: a single output, a colon,
// and a list of input paths.
package depfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

type Deps struct {
	Output string
	Inputs []string
}

// We don't really have to escape every \, but it's simpler,
// and ninja will handle it.
var escaper = strings.NewReplacer(" ", "\\ ",
	":", "\\:",
	"#", "\\#",
	"$", "$$",
	"\\", "\\\\")

func (d *Deps) Print() []byte {
	b := &bytes.Buffer{}
	fmt.Fprintf(b, "%s:", escaper.Replace(d.Output))
	for _, input := range d.Inputs {
		fmt.Fprintf(b, " %s", escaper.Replace(input))
	}
	fmt.Fprintln(b)
	return b.Bytes()
}

// WriteFile writes the dependency file with a final newline, replacing any
// existing file at path.
func (d *Deps) WriteFile(path string) error {
	return os.WriteFile(path, d.Print(), 0666)
}

// token is either a path word (still escaped) or a rule separator.
type token struct {
	word  string
	colon bool
}

// Parse reads a dependency file. Multiple rules are accepted but must all
// name the same output; their inputs are merged, matching how compilers
// emit one rule per header.
func Parse(filename string, r io.Reader) (*Deps, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	ret := &Deps{}
	seenRule := false
	var pending string
	hasPending := false

	for _, tok := range lex(string(buf)) {
		if tok.colon {
			if !hasPending {
				return nil, fmt.Errorf("%s: expected output before ':'", filename)
			}
			out := unescape(pending)
			hasPending = false
			if !seenRule {
				ret.Output = out
				seenRule = true
			} else if out != ret.Output {
				return nil, fmt.Errorf("%s: depfile has multiple outputs: %q and %q", filename, ret.Output, out)
			}
			continue
		}
		if hasPending {
			if !seenRule {
				return nil, fmt.Errorf("%s: expected ':' after output %q", filename, pending)
			}
			ret.Inputs = append(ret.Inputs, unescape(pending))
		}
		pending = tok.word
		hasPending = true
	}
	if hasPending {
		if !seenRule {
			return nil, fmt.Errorf("%s: expected ':' after output %q", filename, pending)
		}
		ret.Inputs = append(ret.Inputs, unescape(pending))
	}
	if !seenRule {
		return nil, fmt.Errorf("%s: empty depfile", filename)
	}
	return ret, nil
}

// lex splits the file into words and rule separators. A ':' separates a
// rule only when followed by whitespace or end of file; a colon embedded
// in a path (C:\foo.h) stays part of the word. Backslash-newline is a
// continuation, backslash-space an escaped space.
func lex(s string) []token {
	var tokens []token
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, token{word: cur.String()})
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 < len(s) {
				next := s[i+1]
				if next == '\n' {
					flush()
					i++
					continue
				}
				if next == '\r' && i+2 < len(s) && s[i+2] == '\n' {
					flush()
					i += 2
					continue
				}
				cur.WriteByte(c)
				cur.WriteByte(next)
				i++
				continue
			}
			cur.WriteByte(c)
		case ':':
			if i+1 == len(s) || isSpace(s[i+1]) ||
				(s[i+1] == '\\' && i+2 < len(s) && (s[i+2] == '\n' || s[i+2] == '\r')) {
				flush()
				tokens = append(tokens, token{colon: true})
			} else {
				cur.WriteByte(c)
			}
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func unescape(w string) string {
	var b strings.Builder
	for i := 0; i < len(w); i++ {
		c := w[i]
		if c == '\\' && i+1 < len(w) {
			switch w[i+1] {
			case ' ', ':', '#', '\\':
				b.WriteByte(w[i+1])
				i++
				continue
			}
		}
		if c == '$' && i+1 < len(w) && w[i+1] == '$' {
			b.WriteByte('$')
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
