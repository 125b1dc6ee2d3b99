package jsonpath

import (
	"errors"
	"testing"
)

const transcribeResult = `{
  "jobName": "voice-to-text-1",
  "accountId": "123456789012",
  "status": "COMPLETED",
  "results": {
    "transcripts": [{"transcript": "hello world"}],
    "items": [{"start_time": "0.0", "alternatives": [{"confidence": "0.99", "content": "hello"}]}]
  }
}`

func TestExtract(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"results.transcripts[0].transcript", "hello world"},
		{"results.items[0].alternatives[0].content", "hello"},
		{"status", "COMPLETED"},
	}
	for _, tt := range tests {
		got, err := Extract([]byte(transcribeResult), tt.path)
		if err != nil {
			t.Fatalf("%s: unexpected err: %v", tt.path, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected %q, got %q", tt.path, tt.want, got)
		}
	}
}

func TestExtractNotFound(t *testing.T) {
	for _, path := range []string{
		"results.transcripts[1].transcript",
		"results.missing",
		"results",
		"status[0]",
	} {
		if _, err := Extract([]byte(transcribeResult), path); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", path, err)
		}
	}
}

func TestExtractBadInput(t *testing.T) {
	if _, err := Extract([]byte("not json"), "a"); err == nil {
		t.Fatalf("expected decode error")
	}
	for _, path := range []string{"", "a..b", "a[x]", "a[0"} {
		if _, err := Extract([]byte(`{"a":[1]}`), path); err == nil {
			t.Fatalf("%q: expected parse error", path)
		}
	}
}

func TestScalarConversion(t *testing.T) {
	root := map[string]any{"n": float64(3), "f": 1.5, "b": true}
	for path, want := range map[string]string{"n": "3", "f": "1.5", "b": "true"} {
		v, err := Lookup(root, path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if s, _ := scalarString(v); s != want {
			t.Fatalf("%s: expected %s, got %s", path, want, s)
		}
	}
}

func TestParseSegment(t *testing.T) {
	seg, err := parseSegment("foo[0][1]")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if seg.key != "foo" || len(seg.idxs) != 2 || seg.idxs[0] != 0 || seg.idxs[1] != 1 {
		t.Fatalf("unexpected parse result: %+v", seg)
	}
}
