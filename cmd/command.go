// File: cmd/command.go
package cmd

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Commander runs the external programs the CLI needs (dmesg, uname).
type Commander interface {
	Execute(name string, args ...string) ([]byte, error)
}

// RealCommander executes actual system commands. A zero Timeout waits forever.
type RealCommander struct {
	Timeout time.Duration
}

func (c RealCommander) Execute(name string, args ...string) ([]byte, error) {
	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, errors.Wrapf(err, "%s: %s", name, msg)
		}
		return out, errors.Wrap(err, name)
	}
	return out, nil
}

// Default commander instance
var cmdExecutor Commander = RealCommander{Timeout: 30 * time.Second}

// SetCommander allows changing the commander for tests
func SetCommander(c Commander) {
	cmdExecutor = c
}
