package label

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// command wraps exec.Cmd with a buffer that keeps stderr for error reports.
type command struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

func newCommand(ctx context.Context, name string, args ...string) *command {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &command{Cmd: cmd, Stderr: stderr}
}

func (c *command) fail(err error) error {
	if msg := strings.TrimSpace(c.Stderr.String()); msg != "" {
		return fmt.Errorf("%s: %w: %s", c.Path, err, msg)
	}
	return fmt.Errorf("%s: %w", c.Path, err)
}

// CUPSTransport prints through the CUPS command-line tools.
type CUPSTransport struct{}

// Queues lists destinations with "lpstat -e".
func (CUPSTransport) Queues(ctx context.Context) ([]string, error) {
	cmd := newCommand(ctx, "lpstat", "-e")
	out, err := cmd.Output()
	if err != nil {
		return nil, cmd.fail(err)
	}
	var queues []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			queues = append(queues, q)
		}
	}
	return queues, nil
}

// Send submits data as a raw job with "lp -d <queue> -o raw".
func (CUPSTransport) Send(ctx context.Context, queue string, data []byte) error {
	cmd := newCommand(ctx, "lp", "-d", queue, "-o", "raw")
	cmd.Stdin = bytes.NewReader(data)
	if err := cmd.Run(); err != nil {
		return cmd.fail(err)
	}
	return nil
}
