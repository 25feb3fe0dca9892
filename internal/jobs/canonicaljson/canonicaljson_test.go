package canonicaljson

import "testing"

func TestMarshalSortsObjectKeys(t *testing.T) {
	got, err := Marshal(map[string]any{"b": 1.0, "a": 2.0})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":2,"b":1}`
	if string(got) != want {
		t.Fatalf("Marshal: want=%s got=%s", want, got)
	}
}

func TestMarshalIsDeterministicAcrossKeyOrder(t *testing.T) {
	a, err := Marshal(map[string]any{"x": 1.0, "y": "hi", "z": []any{1.0, 2.0}})
	if err != nil {
		t.Fatalf("Marshal a: %v", err)
	}
	b, err := Marshal(map[string]any{"z": []any{1.0, 2.0}, "y": "hi", "x": 1.0})
	if err != nil {
		t.Fatalf("Marshal b: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected identical output regardless of input key order: %s vs %s", a, b)
	}
}

func TestMarshalRendersWholeFloatsAsIntegers(t *testing.T) {
	got, err := Marshal(map[string]any{"n": 5.0})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != `{"n":5}` {
		t.Fatalf("want={\"n\":5} got=%s", got)
	}
}

func TestMarshalEscapesControlCharacters(t *testing.T) {
	got, err := Marshal("line1\nline2\t\"quoted\"")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `"line1\nline2\t\"quoted\""`
	if string(got) != want {
		t.Fatalf("want=%s got=%s", want, got)
	}
}

func TestMarshalNestedArraysAndObjects(t *testing.T) {
	got, err := Marshal(map[string]any{
		"tiles": []any{
			map[string]any{"y": 2.0, "x": 1.0},
		},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"tiles":[{"x":1,"y":2}]}`
	if string(got) != want {
		t.Fatalf("want=%s got=%s", want, got)
	}
}
