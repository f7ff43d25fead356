// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package registry

import (
	"sort"

	"github.com/cascadeflow/cascade/template"
)

// Shape describes the statically known structure of a node type's inputs
// or outputs, one Field per key.
type Shape map[string]Field

// Field types. TypeAny admits any path beneath the field; TypeMap with
// nil Fields is an open map whose keys are unknown but whose presence is.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeBool   = "bool"
	TypeList   = "list"
	TypeMap    = "map"
	TypeAny    = "any"
)

// Field describes one key of a Shape.
type Field struct {
	Type        string
	Required    bool
	Description string

	// Elem is the element shape for list fields.
	Elem *Field

	// Fields are the known entries for map fields. Nil means the map's
	// keys are not statically known.
	Fields Shape
}

// Keys returns the shape's field names, sorted.
func (s Shape) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Required returns the names of required fields, sorted.
func (s Shape) Required() []string {
	var keys []string
	for k, f := range s {
		if f.Required {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether a reference path could exist under the shape. The
// first segment names a field; the rest descend through Elem and Fields.
// Unknown structure admits everything beneath it, so Has only returns
// false when the shape positively rules the path out.
func (s Shape) Has(p template.Path) bool {
	if len(p.Segments) == 0 {
		return true
	}
	seg := p.Segments[0]
	if !seg.IsKey {
		return false
	}
	f, ok := s[seg.Key]
	if !ok {
		return false
	}
	return f.has(p.Segments[1:])
}

func (f Field) has(segs []template.Segment) bool {
	if len(segs) == 0 {
		return true
	}
	if f.Type == TypeAny {
		return true
	}
	seg := segs[0]
	if seg.IsKey {
		if f.Type != TypeMap {
			return false
		}
		if f.Fields == nil {
			return true
		}
		nf, ok := f.Fields[seg.Key]
		if !ok {
			return false
		}
		return nf.has(segs[1:])
	}
	if f.Type != TypeList {
		return false
	}
	if f.Elem == nil {
		return true
	}
	return f.Elem.has(segs[1:])
}
