package stageexec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// expandArgs substitutes {placeholder} tokens in a configured command line.
func expandArgs(template []string, values map[string]string) (string, []string) {
	if len(template) == 0 {
		return "", nil
	}
	out := make([]string, len(template))
	for i, arg := range template {
		for key, value := range values {
			arg = strings.ReplaceAll(arg, "{"+key+"}", value)
		}
		out[i] = arg
	}
	return out[0], out[1:]
}
