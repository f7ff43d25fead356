// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package template

import (
	"fmt"
	"sort"

	"github.com/cascadeflow/cascade/types"
)

// Hit is one unresolved template expression found in a value tree.
type Hit struct {
	// ValuePath locates the offending string inside the scanned tree.
	ValuePath string
	// Expr is the template expression text found there.
	Expr string
}

// FindUnresolved scans a value tree for template syntax that survived
// resolution. It runs over a node's final namespaced output after
// execution: any hit means a reference was substituted as literal text
// instead of a value, which is the silent failure mode this runtime exists
// to surface. Escaped "$${...}" text is not a hit.
func FindUnresolved(v types.Value) []Hit {
	var hits []Hit
	v.Visit(func(path string, val types.Value) bool {
		s, ok := val.AsString()
		if !ok {
			return true
		}
		form, exprs := Classify(s)
		if form == FormNone {
			return true
		}
		for _, e := range exprs {
			hits = append(hits, Hit{ValuePath: path, Expr: e.Raw})
		}
		return true
	})
	return hits
}

// Ref is a template reference found in a node's raw parameters before any
// resolution. The compiler uses refs for static path checking and for
// reporting which upstream nodes a parameter depends on.
type Ref struct {
	// ParamPath locates the string containing the expression.
	ParamPath string
	// Expr is the raw expression text.
	Expr string
	// Path is the parsed path. Invalid paths are reported with ParseErr.
	Path Path
	// ParseErr is non-nil when the inner text is not a valid path.
	ParseErr error
	// Form is the template form of the containing string.
	Form Form
}

// ExtractRefs collects every template reference in a parameter map, sorted
// by parameter path so reports are deterministic.
func ExtractRefs(params map[string]types.Value) []Ref {
	var refs []Ref
	for key, v := range params {
		collectRefs(key, v, &refs)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ParamPath != refs[j].ParamPath {
			return refs[i].ParamPath < refs[j].ParamPath
		}
		return refs[i].Expr < refs[j].Expr
	})
	return refs
}

func collectRefs(path string, v types.Value, out *[]Ref) {
	switch v.Kind() {
	case types.KindString:
		s, _ := v.AsString()
		form, exprs := Classify(s)
		for _, e := range exprs {
			*out = append(*out, Ref{
				ParamPath: path,
				Expr:      e.Raw,
				Path:      e.Path,
				ParseErr:  e.ParseErr,
				Form:      form,
			})
		}
	case types.KindList:
		items, _ := v.AsList()
		for i, item := range items {
			collectRefs(fmt.Sprintf("%s[%d]", path, i), item, out)
		}
	case types.KindMap:
		fields, _ := v.AsMap()
		for k, item := range fields {
			child := k
			if path != "" {
				child = path + "." + k
			}
			collectRefs(child, item, out)
		}
	}
}
