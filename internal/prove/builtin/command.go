package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fyrsmithlabs/prove/internal/prove"
)

const (
	// outputTailLines bounds the command output kept in result details.
	outputTailLines = 20
	// waitDelay bounds how long output pipes are drained after the
	// command is killed at its deadline.
	waitDelay = 2 * time.Second
)

// commandCheck runs the shell command configured for its id in the working
// directory. It passes iff the command exits 0.
type commandCheck struct {
	id string
}

func (c commandCheck) Run(ctx context.Context, pctx *prove.Context) (prove.Outcome, error) {
	command := strings.TrimSpace(pctx.Settings.Commands[c.id])
	if command == "" {
		return prove.Pass(map[string]interface{}{"skipped": "not configured"}), nil
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = pctx.WorkingDir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	details := map[string]interface{}{
		"command": command,
		"output":  tail(out.String(), outputTailLines),
	}
	if err == nil {
		details["exitCode"] = 0
		return prove.Pass(details), nil
	}
	if ctx.Err() != nil {
		return prove.Outcome{}, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		details["exitCode"] = exitErr.ExitCode()
		return prove.Fail(fmt.Sprintf("%s exited with code %d", c.id, exitErr.ExitCode()), details), nil
	}
	return prove.Outcome{}, fmt.Errorf("running %s command: %w", c.id, err)
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
