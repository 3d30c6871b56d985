// Package movie turns synoptic quicklook PNGs into preview movies, both as
// ffmpeg-encoded daily MP4s and as standalone HTML frame players.
package movie

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrNoFrames is returned when there is nothing to animate.
var ErrNoFrames = errors.New("no frames available")

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the command with os/exec and folds stderr into the error.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(strings.TrimSpace(stderr.String()), 512))
	}
	return nil
}

// tail keeps at most the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// Encoder renders an ordered list of PNG frames into an H.264 MP4.
type Encoder struct {
	Binary    string
	Framerate int
	Run       Runner
}

// Encode writes frames to out. Frames are sorted by name first.
func (e Encoder) Encode(ctx context.Context, frames []string, out string) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	run := e.Run
	if run == nil {
		run = ExecRunner
	}
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	rate := e.Framerate
	if rate <= 0 {
		rate = 6
	}

	tmp, err := os.MkdirTemp("", "lwa-frames-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	sorted := append([]string(nil), frames...)
	sort.Strings(sorted)
	for i, f := range sorted {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		if err := os.Symlink(abs, filepath.Join(tmp, fmt.Sprintf("%04d.png", i))); err != nil {
			return fmt.Errorf("link frame %s: %w", f, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return run(ctx, bin,
		"-y",
		"-framerate", strconv.Itoa(rate),
		"-i", filepath.Join(tmp, "%04d.png"),
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		out,
	)
}
