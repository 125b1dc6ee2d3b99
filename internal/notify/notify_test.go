package notify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := New(false, "voicepaste", zerolog.New(&buf))
	if _, ok := n.(*Log); !ok {
		t.Fatalf("expected *Log when disabled, got %T", n)
	}
	n.Notify("voicepaste", "Recording started")
	out := buf.String()
	if !strings.Contains(out, `"title":"voicepaste"`) || !strings.Contains(out, "Recording started") {
		t.Fatalf("unexpected log line %s", out)
	}
}
