// Package cmdrun runs external tools and captures their output.
package cmdrun

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Output is what a finished command wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes name with args. Tests substitute their own Runner.
type Runner func(ctx context.Context, name string, args ...string) (Output, error)

// Exec is the default Runner backed by os/exec.
func Exec(ctx context.Context, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		return out, fmt.Errorf("%s failed: %w, stderr: %s", name, err, Tail(out.Stderr, 512))
	}
	return out, nil
}

// Tail returns at most n trailing bytes of b, trimmed.
func Tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
