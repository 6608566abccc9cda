// SPDX-License-Identifier: MIT

// Package ytdlp invokes the yt-dlp binary to fetch a VOD onto disk.
//
// The binary owns resume, format selection and container merging; this
// package only supervises the process, streams its output into the log and
// turns failures into diagnosable errors.
package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/vodsaver/vodsaver/internal/log"
)

const (
	defaultBin      = "yt-dlp"
	stderrTailLines = 20
	maxScanLine     = 1024 * 1024
)

// Client runs yt-dlp with a fixed cookie bundle and pass-through arguments.
type Client struct {
	// Bin is the binary to invoke, typically "yt-dlp" resolved via PATH.
	Bin string
	// CookiesPath points at a Netscape cookie file handed through verbatim.
	CookiesPath string
	// ExtraArgs are inserted before the managed arguments, unvalidated.
	ExtraArgs []string
	// Timeout bounds one download; zero means no limit beyond ctx.
	Timeout time.Duration
}

// ExitError reports a failed invocation with enough context to diagnose
// from logs alone.
type ExitError struct {
	Args     []string
	ExitCode int
	// Stderr holds the last lines the tool printed before exiting.
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("yt-dlp exited with code %d", e.ExitCode)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return msg
}

// Download fetches url into outPath, merging into an mp4 container. The
// tool's output is streamed to the debug log; on failure the stderr tail is
// carried in the returned ExitError.
func (c *Client) Download(ctx context.Context, url, outPath string) error {
	logger := log.WithComponentFromContext(ctx, "ytdlp")

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	bin := c.Bin
	if bin == "" {
		bin = defaultBin
	}
	args := c.buildArgs(url, outPath)

	cmd := exec.CommandContext(ctx, bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	logger.Info().
		Str("bin", bin).
		Str("url", url).
		Str("dest", outPath).
		Msg("starting download")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", bin, err)
	}

	tail := newTailBuffer(stderrTailLines)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxScanLine)
		for scanner.Scan() {
			logger.Debug().Str("stream", "stdout").Msg(scanner.Text())
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), maxScanLine)
		for scanner.Scan() {
			line := scanner.Text()
			tail.Add(line)
			logger.Debug().Str("stream", "stderr").Msg(line)
		}
	}()

	// Pipes must be drained before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()
	duration := time.Since(start)

	if waitErr == nil {
		logger.Info().Dur("duration", duration).Str("dest", outPath).Msg("download finished")
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("download aborted after %s: %w", duration.Round(time.Second), ctxErr)
	}

	exitCode := 1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &ExitError{Args: args, ExitCode: exitCode, Stderr: tail.String()}
}

// buildArgs keeps the caller's extra arguments first so they can override
// defaults like format selection, then appends the managed set.
func (c *Client) buildArgs(url, outPath string) []string {
	args := make([]string, 0, len(c.ExtraArgs)+8)
	args = append(args, c.ExtraArgs...)
	args = append(args,
		"--cookies", c.CookiesPath,
		"--no-write-cookies",
		"-o", outPath,
		"--merge-output-format", "mp4",
		url,
	)
	return args
}

// tailBuffer keeps the last max lines added to it.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
