package handlers

import (
	"reflect"
	"testing"
)

func TestTokenizeFiltersStopWords(t *testing.T) {
	got := tokenize("the agent is building the deploy pipeline")
	want := []string{"agent", "building", "deploy", "pipeline"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestTokenizeDeduplicates(t *testing.T) {
	got := tokenize("retry retry RETRY")
	if len(got) != 1 || got[0] != "retry" {
		t.Fatalf("expected single token, got %v", got)
	}
}

func TestTokenizeLimitsTokens(t *testing.T) {
	got := tokenize("alpha bravo charlie delta echo foxtrot golf")
	if len(got) != 5 {
		t.Fatalf("expected 5 tokens, got %d", len(got))
	}
}

func TestTokenizeDropsShortWords(t *testing.T) {
	got := tokenize("x deploy y")
	want := []string{"deploy"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
