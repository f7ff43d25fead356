// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package template implements the ${...} reference syntax used by node
parameters and workflow outputs: a path grammar over the shared store, a
scanner that classifies template forms, a resolver with structured failure
reporting, and the detector that finds unresolved template text left in
node outputs.

Two forms exist. The simple form is a string that consists of exactly one
expression ("${fetch.content}") and resolves to the referenced value with
its type preserved. The complex form embeds one or more expressions in
surrounding text ("size: ${fetch.size} bytes") and stringifies each
resolved value. Both forms share one lookup path, so a reference that fails
in one form fails identically in the other. The escape form "$${...}"
renders a literal "${...}" without resolving anything.
*/
package template

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a path: a map key or a list index.
type Segment struct {
	Key   string
	Index int
	IsKey bool
}

// Path is a parsed path expression such as fetch.items[2].name. The first
// segment is always a key naming a store root entry: a node ID or a
// workflow input.
type Path struct {
	Segments []Segment
}

// Root returns the store root key the path starts at.
func (p Path) Root() string {
	if len(p.Segments) == 0 || !p.Segments[0].IsKey {
		return ""
	}
	return p.Segments[0].Key
}

// String reconstructs the canonical text of the path.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p.Segments {
		if seg.IsKey {
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		} else {
			fmt.Fprintf(&b, "[%d]", seg.Index)
		}
	}
	return b.String()
}

func validSegmentChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-':
		return true
	default:
		return false
	}
}

// ParsePath parses a path expression. Keys are separated by dots and may
// contain letters, digits, underscore, and hyphen; list indices use
// bracket notation with a non-negative integer.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, fmt.Errorf("empty path")
	}

	var p Path
	i := 0
	expectKey := true
	for i < len(s) {
		switch {
		case s[i] == '[':
			if expectKey && len(p.Segments) == 0 {
				return Path{}, fmt.Errorf("path %q must start with a key", s)
			}
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return Path{}, fmt.Errorf("path %q has an unterminated index", s)
			}
			idx, err := strconv.Atoi(s[i+1 : i+end])
			if err != nil || idx < 0 {
				return Path{}, fmt.Errorf("path %q has an invalid index %q", s, s[i+1:i+end])
			}
			p.Segments = append(p.Segments, Segment{Index: idx})
			i += end + 1
			expectKey = false
		case s[i] == '.':
			if expectKey {
				return Path{}, fmt.Errorf("path %q has an empty segment", s)
			}
			i++
			expectKey = true
			if i == len(s) {
				return Path{}, fmt.Errorf("path %q ends with a dot", s)
			}
		default:
			if !expectKey {
				return Path{}, fmt.Errorf("path %q: expected '.' or '[' at offset %d", s, i)
			}
			start := i
			for i < len(s) && validSegmentChar(s[i]) {
				i++
			}
			if i == start {
				return Path{}, fmt.Errorf("path %q has an invalid character at offset %d", s, i)
			}
			p.Segments = append(p.Segments, Segment{Key: s[start:i], IsKey: true})
			expectKey = false
		}
	}
	return p, nil
}
