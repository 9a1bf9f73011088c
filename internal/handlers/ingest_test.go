package handlers

import (
	"testing"
	"time"
)

func TestTimestampFromArtifact(t *testing.T) {
	ts, ok := timestampFromArtifact("runs/agent2/build/2026-08-23_14-30-05/output.log")
	if !ok {
		t.Fatal("expected timestamp token parsed")
	}

	want := time.Date(2026, 8, 23, 14, 30, 5, 0, time.UTC).UnixMilli()
	if ts != want {
		t.Fatalf("expected %d, got %d", want, ts)
	}
}

func TestTimestampFromArtifactTokenAnywhere(t *testing.T) {
	ts, ok := timestampFromArtifact("/work/2025-01-02_03-04-05")
	if !ok {
		t.Fatal("expected trailing token parsed")
	}
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()
	if ts != want {
		t.Fatalf("expected %d, got %d", want, ts)
	}
}

func TestTimestampFromArtifactFallsBack(t *testing.T) {
	for _, path := range []string{
		"",
		"runs/agent1/no-stamp/output.log",
		"runs/2026-08-23/partial",       // date only, no time component
		"runs/9999-99-99_99-99-99/bad",  // matches shape, not a real time
	} {
		if _, ok := timestampFromArtifact(path); ok {
			t.Fatalf("expected no timestamp for %q", path)
		}
	}
}

func TestTaskTitle(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"deploy the new build", "deploy the new build"},
		{"first line\nsecond line", "first line"},
		{"   ", "untitled request"},
	}

	for _, tc := range cases {
		if got := taskTitle(tc.message); got != tc.want {
			t.Fatalf("taskTitle(%q): expected %q, got %q", tc.message, tc.want, got)
		}
	}

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	if got := taskTitle(string(long)); len(got) != 80 {
		t.Fatalf("expected 80-char title, got %d chars", len(got))
	}
}
