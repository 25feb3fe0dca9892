package jobs

import (
	"errors"
	"testing"

	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
)

func TestDeriveJobIDIsStableForEquivalentParameters(t *testing.T) {
	a, err := DeriveJobID("hello_world", map[string]any{"message": "hi", "n": 1.0})
	if err != nil {
		t.Fatalf("DeriveJobID a: %v", err)
	}
	b, err := DeriveJobID("hello_world", map[string]any{"n": 1.0, "message": "hi"})
	if err != nil {
		t.Fatalf("DeriveJobID b: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical job_id regardless of key order: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-hex job_id, got %d chars: %s", len(a), a)
	}
}

func TestDeriveJobIDDiffersByJobTypeOrParameters(t *testing.T) {
	base, err := DeriveJobID("hello_world", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("DeriveJobID base: %v", err)
	}
	otherType, err := DeriveJobID("raster_tile_pyramid", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("DeriveJobID otherType: %v", err)
	}
	otherParams, err := DeriveJobID("hello_world", map[string]any{"message": "bye"})
	if err != nil {
		t.Fatalf("DeriveJobID otherParams: %v", err)
	}
	if base == otherType {
		t.Fatalf("expected different job_id for a different job_type")
	}
	if base == otherParams {
		t.Fatalf("expected different job_id for different parameters")
	}
}

func TestValidSemanticIndex(t *testing.T) {
	cases := []struct {
		idx  string
		want bool
	}{
		{"0", true},
		{"greet-3", true},
		{"", false},
		{"has space", false},
		{"has/slash", false},
	}
	for _, tc := range cases {
		if got := ValidSemanticIndex(tc.idx); got != tc.want {
			t.Fatalf("ValidSemanticIndex(%q): want=%v got=%v", tc.idx, tc.want, got)
		}
	}
}

func TestBuildTaskIDFormatsPrefixStageAndIndex(t *testing.T) {
	jobID := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"
	got, err := BuildTaskID(jobID, 2, "greet-3")
	if err != nil {
		t.Fatalf("BuildTaskID: %v", err)
	}
	want := "01234567-s2-greet-3"
	if got != want {
		t.Fatalf("BuildTaskID: want=%s got=%s", want, got)
	}
}

func TestBuildTaskIDRejectsShortJobID(t *testing.T) {
	if _, err := BuildTaskID("short", 1, "0"); !errors.Is(err, joberrors.ErrContractViolation) {
		t.Fatalf("expected ErrContractViolation for short job_id, got %v", err)
	}
}

func TestBuildTaskIDRejectsIllegalSemanticIndex(t *testing.T) {
	jobID := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"
	if _, err := BuildTaskID(jobID, 1, "has space"); !errors.Is(err, joberrors.ErrContractViolation) {
		t.Fatalf("expected ErrContractViolation for illegal semantic index, got %v", err)
	}
}
