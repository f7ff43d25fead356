// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package types

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestFromAny_RoundTrip(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"name":  "report",
		"count": 3,
		"ratio": 0.5,
		"ok":    true,
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"nested": nil},
	}

	v, err := FromAny(raw)
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	if v.Kind() != KindMap {
		t.Fatalf("expected map, got %s", v.Kind())
	}

	back, ok := v.Interface().(map[string]any)
	if !ok {
		t.Fatalf("Interface did not return a map")
	}
	if back["name"] != "report" {
		t.Fatalf("name round-trip: %v", back["name"])
	}
	if back["count"] != float64(3) {
		t.Fatalf("count should normalize to float64, got %T", back["count"])
	}
	if nested := back["meta"].(map[string]any)["nested"]; nested != nil {
		t.Fatalf("expected nil nested, got %v", nested)
	}
}

func TestFromAny_RejectsUnsupported(t *testing.T) {
	t.Parallel()

	if _, err := FromAny(struct{}{}); err == nil {
		t.Fatalf("expected error for struct input")
	}
	if _, err := FromAny(map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatalf("expected error for channel value")
	}
}

func TestValue_Text(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   Value
		want string
	}{
		{NewString("plain"), "plain"},
		{NewInt(42), "42"},
		{NewNumber(2.5), "2.5"},
		{NewBool(true), "true"},
		{Null, "null"},
		{MustValue([]any{1, "x"}), `[1,"x"]`},
	}
	for _, tc := range cases {
		if got := tc.in.Text(); got != tc.want {
			t.Fatalf("Text(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValue_VisitPathsAndOrder(t *testing.T) {
	t.Parallel()

	v := MustValue(map[string]any{
		"b": map[string]any{"inner": "x"},
		"a": []any{"first", "second"},
	})

	var paths []string
	v.Visit(func(path string, _ Value) bool {
		paths = append(paths, path)
		return true
	})

	want := []string{"", "a", "a[0]", "a[1]", "b", "b.inner"}
	if len(paths) != len(want) {
		t.Fatalf("got %d paths %v, want %v", len(paths), paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("path[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestValue_VisitStops(t *testing.T) {
	t.Parallel()

	v := MustValue([]any{"a", "b", "c"})
	var seen int
	done := v.Visit(func(_ string, val Value) bool {
		if s, ok := val.AsString(); ok {
			seen++
			return s != "b"
		}
		return true
	})
	if done {
		t.Fatalf("expected early stop")
	}
	if seen != 2 {
		t.Fatalf("expected 2 strings before stop, saw %d", seen)
	}
}

func TestValue_CloneDoesNotAlias(t *testing.T) {
	t.Parallel()

	orig := MustValue(map[string]any{"items": []any{"a"}})
	clone := orig.Clone()

	items, _ := orig.Field("items")
	list, _ := items.AsList()
	list[0] = NewString("mutated")

	cloneItems, _ := clone.Field("items")
	first, _ := cloneItems.Index(0)
	if s, _ := first.AsString(); s != "a" {
		t.Fatalf("clone aliased original: %q", s)
	}
	if !clone.Equal(MustValue(map[string]any{"items": []any{"a"}})) {
		t.Fatalf("clone changed unexpectedly")
	}
}

func TestValue_JSON(t *testing.T) {
	t.Parallel()

	v := MustValue(map[string]any{"n": 1.5, "s": "x", "l": []any{true}})
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Value
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(v) {
		t.Fatalf("round-trip mismatch: %s vs %s", decoded, v)
	}
}

func TestValue_StringsIn(t *testing.T) {
	t.Parallel()

	v := MustValue(map[string]any{
		"a": "one",
		"b": []any{"two", 3, map[string]any{"c": "three"}},
	})
	got := v.StringsIn()
	if len(got) != 3 {
		t.Fatalf("expected 3 strings, got %v", got)
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]Kind{
		"string": KindString, "int": KindNumber, "boolean": KindBool,
		"array": KindList, "object": KindMap,
	} {
		got, err := ParseKind(name)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q) = %s, want %s", name, got, want)
		}
	}
	if _, err := ParseKind("tensor"); err == nil {
		t.Fatalf("expected error for unknown type name")
	}
}
