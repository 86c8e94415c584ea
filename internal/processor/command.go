package processor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

const stderrTail = 500

// Command is an external tool invocation. Args may contain {placeholders}
// that are filled per job.
type Command struct {
	Args []string
}

func (c Command) expand(vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}
	return args
}

// run executes the command in dir, passing each stdout line to onLine.
// It returns the last non-empty stdout line.
func (c Command) run(ctx context.Context, logger *slog.Logger, dir string, vars map[string]string, onLine func(string)) (string, error) {
	if len(c.Args) == 0 {
		return "", errors.New("no command configured")
	}
	args := c.expand(vars)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = 5 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stdout: %w", err)
	}

	logger.Debug("Running command",
		slog.String("command", args[0]),
		slog.String("dir", dir),
	)

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start %s: %w", args[0], err)
	}

	last := scanLines(stdout, onLine)

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%s failed: %s", args[0], tail(stderr.String(), err))
	}

	return last, nil
}

// scanLines splits on both \n and \r so carriage-return progress bars are seen
// as separate lines.
func scanLines(r io.Reader, onLine func(string)) string {
	scanner := bufio.NewScanner(r)
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			return i + 1, data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	})

	var last string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		if onLine != nil {
			onLine(line)
		}
	}
	// drain so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
	return last
}

func tail(stderr string, err error) string {
	s := strings.TrimSpace(stderr)
	if s == "" {
		return err.Error()
	}
	if len(s) > stderrTail {
		start := len(s) - stderrTail
		for start < len(s) && !utf8.RuneStart(s[start]) {
			start++
		}
		s = s[start:]
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}
