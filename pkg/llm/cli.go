package llm

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIProvider bridges to an external generation binary. The message goes
// to stdin, the response is read line-by-line from stdout, and the process
// working directory is the vault root.
type CLIProvider struct {
	Command string
}

func NewCLIProvider(command string) *CLIProvider {
	return &CLIProvider{Command: command}
}

func (p *CLIProvider) Invoke(ctx context.Context, inv *Invocation) (<-chan Event, error) {
	args := []string{"-p"}
	if inv.Prompt != "" {
		args = append(args, "--system-prompt", inv.Prompt)
	}
	if inv.Model != "" {
		args = append(args, "--model", inv.Model)
	}
	if len(inv.Tools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(inv.Tools, ","))
	}
	if inv.PermissionMode != "" {
		args = append(args, "--permission-mode", inv.PermissionMode)
	}

	cmd := exec.CommandContext(ctx, p.Command, args...)
	cmd.Dir = inv.WorkDir
	cmd.Stdin = strings.NewReader(inv.Message)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start provider: %w", err)
	}

	events := make(chan Event, 64)
	go func() {
		defer close(events)

		var full strings.Builder
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			full.WriteString(line)
			full.WriteString("\n")
			events <- Event{Type: EventText, Content: line}
		}

		if err := cmd.Wait(); err != nil {
			events <- Event{Type: EventError, Err: fmt.Errorf("provider exited: %w", err)}
			return
		}
		events <- Event{Type: EventResult, Content: full.String()}
	}()

	return events, nil
}
