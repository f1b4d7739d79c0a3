package textutil

import "testing"

func TestB2TruncateTitleNeverSplitsARune(t *testing.T) {
	emoji := ""
	for i := 0; i < 60; i++ {
		emoji += "😀"
	}
	got := TruncateTitle(emoji)
	for _, r := range got {
		if r == 0xFFFD {
			t.Fatalf("truncated title contains a replacement rune: %q", got)
		}
	}
	if len(got) == len(emoji) {
		t.Fatal("expected truncation to shorten a 60-rune title")
	}
	if got[len(got)-len("…"):] != "…" {
		t.Fatalf("expected truncated title to end with an ellipsis, got %q", got)
	}
}

func TestTruncateTitleShortStringUnchanged(t *testing.T) {
	if got := TruncateTitle("short title"); got != "short title" {
		t.Fatalf("got %q", got)
	}
}
