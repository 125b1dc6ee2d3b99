// Package ffmpeg transcodes in-memory WAV audio to other upload containers
// by piping through the ffmpeg binary (stdin to stdout, no temp files).
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Options selects the output encoding.
type Options struct {
	Container  string
	Codec      string
	SampleRate int
	Channels   int
}

// Convert reads WAV bytes and returns them re-encoded per opts.
func Convert(ctx context.Context, log zerolog.Logger, in []byte, opts Options) ([]byte, error) {
	mux, ok := muxerFor(opts.Container)
	if !ok {
		return nil, fmt.Errorf("unsupported container: %s", opts.Container)
	}
	codec := mux.codec
	if opts.Codec != "" {
		c, ok := ffmpegCodecFor(opts.Codec)
		if !ok {
			return nil, fmt.Errorf("unsupported codec: %s", opts.Codec)
		}
		codec = c
	}
	channels := opts.Channels
	if channels <= 0 {
		channels = 1
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-f", "wav", "-i", "pipe:0",
		"-ac", strconv.Itoa(channels)}
	if rate := OutputRate(opts); rate > 0 {
		args = append(args, "-ar", strconv.Itoa(rate))
	}
	args = append(args, "-c:a", codec)
	args = append(args, mux.extra...)
	args = append(args, "-f", mux.format, "pipe:1")

	log.Debug().Str("args", strings.Join(args, " ")).Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w\n%s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}
	return stdout.Bytes(), nil
}

type muxer struct {
	format string
	codec  string
	extra  []string
	// rate is forced for containers that only carry one sample rate.
	rate int
}

// muxerFor maps an upload container to the ffmpeg muxer and its default codec.
// m4a/mp4 are written fragmented because a pipe cannot be seeked back.
func muxerFor(container string) (muxer, bool) {
	switch strings.ToLower(container) {
	case "flac":
		return muxer{format: "flac", codec: "flac"}, true
	case "ogg":
		return muxer{format: "ogg", codec: "libopus"}, true
	case "webm":
		return muxer{format: "webm", codec: "libopus"}, true
	case "mp3":
		return muxer{format: "mp3", codec: "libmp3lame"}, true
	case "mp4", "m4a":
		return muxer{format: "mp4", codec: "aac", extra: []string{"-movflags", "frag_keyframe+empty_moov"}}, true
	case "amr":
		return muxer{format: "amr", codec: "libopencore_amrnb", rate: 8000}, true
	}
	return muxer{}, false
}

// OutputRate is the sample rate Convert writes for opts, or 0 when the input
// rate is kept.
func OutputRate(opts Options) int {
	if mux, ok := muxerFor(opts.Container); ok && mux.rate > 0 {
		return mux.rate
	}
	if opts.SampleRate > 0 {
		return opts.SampleRate
	}
	return 0
}

func ffmpegCodecFor(key string) (string, bool) {
	k := strings.ToLower(key)
	switch k {
	case "opus", "libopus":
		return "libopus", true
	case "flac":
		return "flac", true
	case "aac":
		return "aac", true
	case "mp3":
		return "libmp3lame", true
	case "vorbis", "libvorbis":
		return "libvorbis", true
	case "amr":
		return "libopencore_amrnb", true
	case "pcm", "pcm_s16le":
		return "pcm_s16le", true
	}
	return "", false
}
