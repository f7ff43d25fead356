// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package trace

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/cascadeflow/cascade/types"
)

// Limits bound what the artifact embeds. Store values and model prompts
// can be arbitrarily large and occasionally binary; the artifact keeps a
// readable prefix and marks what it dropped.
type Limits struct {
	MaxStringLen int `yaml:"max_string_len" json:"max_string_len"`
	MaxListItems int `yaml:"max_list_items" json:"max_list_items"`
	MaxMapKeys   int `yaml:"max_map_keys" json:"max_map_keys"`
}

// DefaultLimits keeps artifacts comfortably greppable.
func DefaultLimits() Limits {
	return Limits{
		MaxStringLen: 4096,
		MaxListItems: 100,
		MaxMapKeys:   100,
	}
}

// String sanitizes one string: binary content becomes a size marker,
// oversized content keeps a prefix plus a truncation marker.
func (l Limits) String(s string) string {
	if !utf8.ValidString(s) {
		return fmt.Sprintf("<binary: %d bytes>", len(s))
	}
	if l.MaxStringLen <= 0 || len(s) <= l.MaxStringLen {
		return s
	}
	cut := l.MaxStringLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s... [truncated, %d bytes total]", s[:cut], len(s))
}

// Value sanitizes a value tree, applying the string rule to every leaf
// and capping list and map sizes.
func (l Limits) Value(v types.Value) types.Value {
	switch v.Kind() {
	case types.KindString:
		s, _ := v.AsString()
		clean := l.String(s)
		if clean == s {
			return v
		}
		return types.NewString(clean)
	case types.KindList:
		items, _ := v.AsList()
		n := len(items)
		keep := n
		if l.MaxListItems > 0 && n > l.MaxListItems {
			keep = l.MaxListItems
		}
		out := make([]types.Value, 0, keep+1)
		for _, item := range items[:keep] {
			out = append(out, l.Value(item))
		}
		if keep < n {
			out = append(out, types.NewString(fmt.Sprintf("<truncated: %d more items>", n-keep)))
		}
		return types.NewList(out...)
	case types.KindMap:
		m, _ := v.AsMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		keep := len(keys)
		if l.MaxMapKeys > 0 && keep > l.MaxMapKeys {
			keep = l.MaxMapKeys
		}
		out := make(map[string]types.Value, keep+1)
		for _, k := range keys[:keep] {
			out[k] = l.Value(m[k])
		}
		if keep < len(keys) {
			out["_truncated"] = types.NewString(fmt.Sprintf("<truncated: %d more keys>", len(keys)-keep))
		}
		return types.NewMap(out)
	default:
		return v
	}
}

// Diff sanitizes a store diff map.
func (l Limits) Diff(diff map[string]types.Value) map[string]types.Value {
	if len(diff) == 0 {
		return nil
	}
	out := make(map[string]types.Value, len(diff))
	for k, v := range diff {
		out[k] = l.Value(v)
	}
	return out
}

// Calls sanitizes call records, bounding embedded prompts and responses.
func (l Limits) Calls(calls []types.LLMCallRecord) []types.LLMCallRecord {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.LLMCallRecord, len(calls))
	for i, c := range calls {
		c.Prompt = l.String(c.Prompt)
		c.Response = l.String(c.Response)
		out[i] = c
	}
	return out
}
