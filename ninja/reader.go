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

// Package ninja reads ninja build manifests as a forward-only stream of
// build edges. The reader performs no referential validation: inputs that
// are never declared as outputs are legal and simply never expand further.
package ninja

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Edge is one build statement. Output and input paths are raw strings with
// ninja escapes and file-scope variables already expanded.
type Edge struct {
	// Rule is the name of the rule invoked by this build statement.
	// "phony" is the built-in aliasing rule.
	Rule string

	ExplicitOuts []string
	ImplicitOuts []string

	ExplicitIns  []string
	ImplicitIns  []string
	OrderOnlyIns []string

	bindings map[string]string
	rule     *ruleDef
	file     *Reader
}

// Outs returns explicit followed by implicit outputs.
func (e *Edge) Outs() []string {
	return append(append([]string(nil), e.ExplicitOuts...), e.ImplicitOuts...)
}

// Ins returns explicit, implicit, then order-only inputs.
func (e *Edge) Ins() []string {
	ins := append(append([]string(nil), e.ExplicitIns...), e.ImplicitIns...)
	return append(ins, e.OrderOnlyIns...)
}

// Prop resolves a variable in the edge's scope: edge bindings shadow rule
// bindings, which shadow file-scope bindings. $in and $out are bound to the
// explicit inputs and outputs. Undeclared names resolve to "".
func (e *Edge) Prop(name string) string {
	return e.expand("${"+name+"}", 0)
}

// Generator reports whether the edge declares the "generator" property,
// meaning its command re-creates the build description itself.
func (e *Edge) Generator() bool {
	switch e.Prop("generator") {
	case "", "0", "false":
		return false
	}
	return true
}

const maxExpandDepth = 16

func (e *Edge) expand(value string, depth int) string {
	if depth > maxExpandDepth {
		return ""
	}
	return expandVars(value, func(name string) string {
		switch name {
		case "in":
			return strings.Join(e.ExplicitIns, " ")
		case "out":
			return strings.Join(e.ExplicitOuts, " ")
		}
		if v, ok := e.bindings[name]; ok {
			return e.expand(v, depth+1)
		}
		if e.rule != nil {
			if v, ok := e.rule.bindings[name]; ok {
				// Rule values are stored raw; they may reference
				// $in, $out, and edge variables.
				return e.expand(v, depth+1)
			}
		}
		return e.file.scope[name]
	})
}

type ruleDef struct {
	name     string
	bindings map[string]string
}

// Reader produces Edges from a single ninja manifest in declaration order.
// It is single-pass and not restartable; re-open the source to re-scan.
type Reader struct {
	name  string
	in    *bufio.Reader
	line  int
	peek  *logicalLine
	scope map[string]string
	rules map[string]*ruleDef
}

type logicalLine struct {
	text   string
	line   int
	indent bool
}

// NewReader returns a Reader over a manifest. name is used in error messages.
func NewReader(name string, r io.Reader) *Reader {
	return &Reader{
		name:  name,
		in:    bufio.NewReader(r),
		scope: make(map[string]string),
		rules: map[string]*ruleDef{
			"phony": {name: "phony", bindings: map[string]string{}},
		},
	}
}

// Next returns the next build edge, or io.EOF when the manifest is
// exhausted. Declarations between build statements (rules, variables,
// defaults, pools) are consumed transparently.
func (r *Reader) Next() (*Edge, error) {
	for {
		ll, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if ll.indent {
			return nil, r.errorf(ll.line, "unexpected indented line")
		}

		keyword, rest := splitKeyword(ll.text)
		switch keyword {
		case "rule":
			if err := r.parseRule(rest, ll.line); err != nil {
				return nil, err
			}
		case "build":
			return r.parseBuild(rest, ll.line)
		case "pool":
			// Pools only affect scheduling; consume the scope and move on.
			if _, err := r.readScope(); err != nil {
				return nil, err
			}
		case "default", "include", "subninja":
			// Defaults don't produce edges. Included manifests are the
			// caller's responsibility; each Reader covers one file.
		default:
			if name, value, ok := splitAssignment(ll.text); ok {
				r.scope[name] = expandVars(value, func(n string) string { return r.scope[n] })
				continue
			}
			return nil, r.errorf(ll.line, "unexpected declaration %q", ll.text)
		}
	}
}

func (r *Reader) parseRule(rest string, line int) error {
	name := strings.TrimSpace(rest)
	if name == "" {
		return r.errorf(line, "rule with no name")
	}
	bindings, err := r.readScope()
	if err != nil {
		return err
	}
	r.rules[name] = &ruleDef{name: name, bindings: bindings}
	return nil
}

func (r *Reader) parseBuild(rest string, line int) (*Edge, error) {
	edge := &Edge{file: r}

	// Outputs run up to an unescaped ':'; '|' inside the output section
	// separates implicit outputs.
	outs, rest, found := cutUnescaped(rest, ':')
	if !found {
		return nil, r.errorf(line, "build statement missing ':'")
	}

	expOut, impOut, _ := splitPathSections(outs)
	edge.ExplicitOuts = r.expandPaths(expOut)
	edge.ImplicitOuts = r.expandPaths(impOut)
	if len(edge.ExplicitOuts)+len(edge.ImplicitOuts) == 0 {
		return nil, r.errorf(line, "build statement with no outputs")
	}

	fields := lexPaths(rest)
	if len(fields) == 0 {
		return nil, r.errorf(line, "build statement missing rule name")
	}
	edge.Rule = fields[0]
	expIn, impIn, orderIn := splitPathSections(strings.Join(fields[1:], " "))
	edge.ExplicitIns = r.expandPaths(expIn)
	edge.ImplicitIns = r.expandPaths(impIn)
	edge.OrderOnlyIns = r.expandPaths(orderIn)

	edge.rule = r.rules[edge.Rule]
	var err error
	if edge.bindings, err = r.readScope(); err != nil {
		return nil, err
	}
	return edge, nil
}

// readScope consumes the indented `name = value` block following a rule,
// build, or pool declaration.
func (r *Reader) readScope() (map[string]string, error) {
	bindings := make(map[string]string)
	for {
		ll, err := r.readLine()
		if err == io.EOF {
			return bindings, nil
		}
		if err != nil {
			return nil, err
		}
		if !ll.indent {
			r.peek = ll
			return bindings, nil
		}
		name, value, ok := splitAssignment(ll.text)
		if !ok {
			return nil, r.errorf(ll.line, "expected variable assignment, found %q", ll.text)
		}
		bindings[name] = value
	}
}

// readLine returns the next non-blank, non-comment logical line, joining
// `$`-escaped newline continuations.
func (r *Reader) readLine() (*logicalLine, error) {
	if r.peek != nil {
		ll := r.peek
		r.peek = nil
		return ll, nil
	}
	for {
		raw, startLine, err := r.readPhysical()
		if err != nil {
			return nil, err
		}
		indent := len(raw) > 0 && (raw[0] == ' ' || raw[0] == '\t')
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		return &logicalLine{text: text, line: startLine, indent: indent}, nil
	}
}

// readPhysical reads one line, following `$`-newline continuations.
func (r *Reader) readPhysical() (string, int, error) {
	var sb strings.Builder
	start := r.line + 1
	for {
		chunk, err := r.in.ReadString('\n')
		if chunk == "" && err != nil {
			if sb.Len() > 0 && err == io.EOF {
				return sb.String(), start, nil
			}
			return "", start, err
		}
		r.line++
		chunk = strings.TrimRight(chunk, "\r\n")
		if hasTrailingEscape(chunk) {
			sb.WriteString(chunk[:len(chunk)-1])
			if err == io.EOF {
				return sb.String(), start, nil
			}
			continue
		}
		sb.WriteString(chunk)
		return sb.String(), start, nil
	}
}

// hasTrailingEscape reports whether the line ends in an odd run of '$',
// i.e. the newline itself is escaped.
func hasTrailingEscape(s string) bool {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '$'; i-- {
		n++
	}
	return n%2 == 1
}

func (r *Reader) expandPaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = expandVars(p, func(n string) string { return r.scope[n] })
	}
	return out
}

func (r *Reader) errorf(line int, format string, args ...interface{}) error {
	return fmt.Errorf("%s:%d: %s", r.name, line, fmt.Sprintf(format, args...))
}

// splitKeyword splits a declaration into its leading keyword and remainder.
func splitKeyword(s string) (string, string) {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// splitAssignment parses `name = value`, where '=' must not be escaped.
func splitAssignment(s string) (name, value string, ok bool) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(s[:i])
	if name == "" || strings.ContainsAny(name, " \t$:|") {
		return "", "", false
	}
	return name, strings.TrimSpace(s[i+1:]), true
}

// cutUnescaped splits s at the first occurrence of sep not escaped by '$'.
func cutUnescaped(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '$':
			i++
		case sep:
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// splitPathSections splits a path list on unescaped '|' and '||' into
// explicit, implicit, and order-only sections. Tokens keep their '$'
// escapes; expandPaths resolves them.
func splitPathSections(s string) (explicit, implicit, orderOnly []string) {
	section := 0
	for _, tok := range lexPaths(s) {
		switch tok {
		case "|":
			section = 1
			continue
		case "||":
			section = 2
			continue
		}
		switch section {
		case 0:
			explicit = append(explicit, tok)
		case 1:
			implicit = append(implicit, tok)
		case 2:
			orderOnly = append(orderOnly, tok)
		}
	}
	return explicit, implicit, orderOnly
}

// lexPaths splits on unescaped whitespace, keeping "|" and "||" as their
// own tokens. '$' escapes the following character.
func lexPaths(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$' && i+1 < len(s):
			cur.WriteByte(c)
			i++
			cur.WriteByte(s[i])
		case c == ' ' || c == '\t':
			flush()
		case c == '|':
			flush()
			if i+1 < len(s) && s[i+1] == '|' {
				toks = append(toks, "||")
				i++
			} else {
				toks = append(toks, "|")
			}
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return toks
}

// expandVars substitutes $name and ${name} references using lookup. Escape
// sequences `$$`, `$ `, and `$:` produce their literal character.
func expandVars(s string, lookup func(string) string) string {
	if !strings.ContainsRune(s, '$') {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '$' {
			sb.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			break
		}
		i++
		switch c := s[i]; {
		case c == '$' || c == ' ' || c == ':':
			sb.WriteByte(c)
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return sb.String()
			}
			sb.WriteString(lookup(s[i+1 : i+end]))
			i += end
		case isVarChar(c):
			j := i
			for j < len(s) && isVarChar(s[j]) {
				j++
			}
			sb.WriteString(lookup(s[i:j]))
			i = j - 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func isVarChar(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
