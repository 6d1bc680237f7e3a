// Package audio converts agent speech into the 8kHz mono mu-law frames a
// Twilio media stream can play. Two implementations exist: an external
// ffmpeg process for compressed formats, and an in-process resampler for
// raw PCM.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Transcoder converts one chunk of agent audio to 8kHz mono mu-law.
// Implementations must treat every call as independent: no shared process,
// no retry, a failed chunk is simply dropped by the caller.
type Transcoder interface {
	Transcode(ctx context.Context, in []byte) ([]byte, error)
}

// FFmpeg transcodes by streaming each chunk through a freshly spawned
// ffmpeg process.
type FFmpeg struct {
	path      string
	inputArgs []string
	logger    *slog.Logger
}

// NewFFmpeg resolves the ffmpeg binary and the demuxer arguments for the
// configured agent output format.
func NewFFmpeg(path, inputFormat string, logger *slog.Logger) (*FFmpeg, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found at %q: %w", path, err)
	}
	args, err := ffmpegInputArgs(inputFormat)
	if err != nil {
		return nil, err
	}
	return &FFmpeg{path: resolved, inputArgs: args, logger: logger}, nil
}

func ffmpegInputArgs(format string) ([]string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch {
	case strings.HasPrefix(format, "pcm_"):
		rate, err := strconv.Atoi(strings.TrimPrefix(format, "pcm_"))
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("unsupported pcm format %q", format)
		}
		return []string{"-f", "s16le", "-ar", strconv.Itoa(rate), "-ac", "1"}, nil
	case strings.HasPrefix(format, "mp3"):
		return []string{"-f", "mp3"}, nil
	case format == "ulaw_8000":
		// Already what the telephony side wants; no transcoder needed.
		return nil, fmt.Errorf("format %q requires no transcoding", format)
	default:
		return nil, fmt.Errorf("unsupported agent output format %q", format)
	}
}

func (f *FFmpeg) Transcode(ctx context.Context, in []byte) ([]byte, error) {
	args := append(append([]string{"-hide_banner", "-loglevel", "error"}, f.inputArgs...),
		"-i", "pipe:0", "-f", "mulaw", "-ar", "8000", "-ac", "1", "pipe:1")
	out, diag, err := runPipeline(ctx, f.path, args, in)
	if err != nil {
		return nil, err
	}
	// ffmpeg chatter on a successful run is diagnostic, not failure.
	if diag != "" && f.logger != nil {
		f.logger.Warn("ffmpeg diagnostics", "detail", diag)
	}
	return out, nil
}

// ForOutputFormat picks the transcoder for an agent output format. A nil
// transcoder means the format is already telephony-native and payloads
// pass through untouched.
func ForOutputFormat(format, ffmpegPath string, logger *slog.Logger) (Transcoder, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" || f == "ulaw_8000" {
		return nil, nil
	}
	if ffmpegPath != "" {
		return NewFFmpeg(ffmpegPath, f, logger)
	}
	if strings.HasPrefix(f, "pcm_") {
		rate, err := strconv.Atoi(strings.TrimPrefix(f, "pcm_"))
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("unsupported pcm format %q", format)
		}
		return NewMulaw(rate, 1)
	}
	return nil, fmt.Errorf("FFMPEG_PATH is required for agent output format %q", format)
}

// runPipeline feeds in to the process stdin, collects stdout, and fails on
// a non-zero exit. Stdout is drained by os/exec concurrently with our
// stdin writes, so the pipes cannot deadlock.
func runPipeline(ctx context.Context, path string, args []string, in []byte) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, "", fmt.Errorf("transcode stdin: %w", err)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("transcode spawn: %w", err)
	}

	_, writeErr := stdin.Write(in)
	closeErr := stdin.Close()

	if err := cmd.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, "", context.Canceled
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 2<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(2<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return nil, "", fmt.Errorf("transcode failed: %s", detail)
	}
	diag := strings.TrimSpace(stderr.String())
	// A write error against a process that still exited zero means the
	// output cannot cover the full input; drop it.
	if writeErr != nil {
		return nil, diag, fmt.Errorf("transcode write: %w", writeErr)
	}
	if closeErr != nil {
		return nil, diag, fmt.Errorf("transcode close stdin: %w", closeErr)
	}

	return stdout.Bytes(), diag, nil
}
