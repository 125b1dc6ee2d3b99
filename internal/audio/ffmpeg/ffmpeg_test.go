package ffmpeg

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestMuxerFor(t *testing.T) {
	mux, ok := muxerFor("M4A")
	if !ok || mux.format != "mp4" || mux.codec != "aac" || len(mux.extra) != 2 || mux.rate != 0 {
		t.Fatalf("unexpected m4a muxer: %+v %v", mux, ok)
	}
	if _, ok := muxerFor("wav"); ok {
		t.Fatalf("wav needs no transcode and has no muxer entry")
	}
}

func TestConvertRejectsUnknownCodec(t *testing.T) {
	_, err := Convert(context.Background(), zerolog.Nop(), []byte("RIFF"), Options{Container: "ogg", Codec: "wma"})
	if err == nil {
		t.Fatalf("expected unsupported codec error")
	}
	_, err = Convert(context.Background(), zerolog.Nop(), []byte("RIFF"), Options{Container: "avi"})
	if err == nil {
		t.Fatalf("expected unsupported container error")
	}
}

func TestOutputRate(t *testing.T) {
	tests := []struct {
		opts Options
		want int
	}{
		{Options{Container: "amr", SampleRate: 16000}, 8000},
		{Options{Container: "AMR"}, 8000},
		{Options{Container: "flac", SampleRate: 16000}, 16000},
		{Options{Container: "ogg"}, 0},
		{Options{Container: "avi", SampleRate: 22050}, 22050},
	}
	for _, tc := range tests {
		if got := OutputRate(tc.opts); got != tc.want {
			t.Errorf("OutputRate(%+v) = %d, want %d", tc.opts, got, tc.want)
		}
	}
}
