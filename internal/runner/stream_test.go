package runner

import "testing"

func TestR1ExtractStreamText(t *testing.T) {
	cases := []struct {
		name string
		line string
		want string
		ok   bool
	}{
		{
			name: "stream_event content_block_delta",
			line: `{"type":"stream_event","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello "}}}`,
			want: "Hello ",
			ok:   true,
		},
		{
			name: "assistant message first text block",
			line: `{"type":"assistant","message":{"content":[{"type":"text","text":"done"}]}}`,
			want: "done",
			ok:   true,
		},
		{
			name: "result",
			line: `{"type":"result","result":"final output"}`,
			want: "final output",
			ok:   true,
		},
		{
			name: "legacy top-level content_block_delta",
			line: `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"legacy"}}`,
			want: "legacy",
			ok:   true,
		},
		{
			name: "unparseable line",
			line: `not json at all`,
			want: "",
			ok:   false,
		},
		{
			name: "unrecognized type",
			line: `{"type":"ping"}`,
			want: "",
			ok:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractStreamText(tc.line)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("ExtractStreamText(%q) = (%q, %v), want (%q, %v)", tc.line, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestB_TransientPatterns(t *testing.T) {
	if !IsTransient("Error: 503 Service Unavailable") {
		t.Fatal("expected 503 to be classified transient")
	}
	if !IsTransient("socket hang up") {
		t.Fatal("expected socket hang up to be classified transient")
	}
	if IsTransient("fatal: repository not found") {
		t.Fatal("did not expect generic git error to be classified transient")
	}
}
