package audio

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRunPipelineIdentity(t *testing.T) {
	in := []byte("raw audio bytes")
	out, _, err := runPipeline(context.Background(), "cat", nil, in)
	if err != nil {
		t.Fatalf("runPipeline(cat) error = %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("output = %q, want %q", out, in)
	}
}

func TestRunPipelineNonZeroExit(t *testing.T) {
	_, _, err := runPipeline(context.Background(), "false", nil, []byte("x"))
	if err == nil {
		t.Fatalf("runPipeline(false) succeeded, want error")
	}
	if !strings.Contains(err.Error(), "transcode failed") {
		t.Fatalf("error = %v, want transcode failure", err)
	}
}

func TestRunPipelineSpawnFailure(t *testing.T) {
	_, _, err := runPipeline(context.Background(), "/nonexistent/encoder-binary", nil, []byte("x"))
	if err == nil {
		t.Fatalf("runPipeline with missing binary succeeded, want error")
	}
}

func TestFFmpegInputArgs(t *testing.T) {
	args, err := ffmpegInputArgs("pcm_16000")
	if err != nil {
		t.Fatalf("ffmpegInputArgs(pcm_16000) error = %v", err)
	}
	want := []string{"-f", "s16le", "-ar", "16000", "-ac", "1"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args = %v, want %v", args, want)
		}
	}

	if _, err := ffmpegInputArgs("mp3_44100_128"); err != nil {
		t.Fatalf("ffmpegInputArgs(mp3_44100_128) error = %v", err)
	}
	if _, err := ffmpegInputArgs("ulaw_8000"); err == nil {
		t.Fatalf("ffmpegInputArgs(ulaw_8000) succeeded, want error")
	}
	if _, err := ffmpegInputArgs("opus_48000"); err == nil {
		t.Fatalf("ffmpegInputArgs(opus_48000) succeeded, want error")
	}
}

func TestForOutputFormatSelection(t *testing.T) {
	tr, err := ForOutputFormat("ulaw_8000", "", nil)
	if err != nil || tr != nil {
		t.Fatalf("ForOutputFormat(ulaw_8000) = %v, %v; want nil transcoder", tr, err)
	}

	tr, err = ForOutputFormat("pcm_16000", "", nil)
	if err != nil {
		t.Fatalf("ForOutputFormat(pcm_16000) error = %v", err)
	}
	if _, ok := tr.(*Mulaw); !ok {
		t.Fatalf("transcoder type = %T, want *Mulaw", tr)
	}

	tr, err = ForOutputFormat("mp3_44100_128", "cat", nil)
	if err != nil {
		t.Fatalf("ForOutputFormat(mp3, ffmpeg) error = %v", err)
	}
	if _, ok := tr.(*FFmpeg); !ok {
		t.Fatalf("transcoder type = %T, want *FFmpeg", tr)
	}

	if _, err := ForOutputFormat("mp3_44100_128", "", nil); err == nil {
		t.Fatalf("ForOutputFormat(mp3, no ffmpeg) succeeded, want error")
	}
}
