// ABOUTME: Shell command execution with line-granular output streaming
// ABOUTME: Emits output lines plus [TIMEOUT] and [EXIT n] markers

package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// expandCommands resolves a command payload to the shell commands to run.
// Canned command types are only consulted when the payload carries no
// literal command list.
func expandCommands(cmd *Command) []string {
	if len(cmd.Commands) > 0 {
		return cmd.Commands
	}
	switch cmd.Command {
	case "apt_upgrade":
		return []string{
			"sudo apt update",
			"sudo DEBIAN_FRONTEND=noninteractive apt -y upgrade",
		}
	case "sudo_check":
		return []string{"sudo -n apt -v || true"}
	}
	return nil
}

// streamCommand runs one shell command and feeds its combined output to
// emit line by line, each line keeping its trailing newline. A timeout
// kills the process and emits a [TIMEOUT] marker. The exit code marker is
// always the final emission: [EXIT -1] on timeout, [EXIT n] otherwise.
func streamCommand(ctx context.Context, command string, emit func(string)) int {
	pr, pw, err := os.Pipe()
	if err != nil {
		emit(fmt.Sprintf("[ERROR] %v\n", err))
		emit("[EXIT -1]\n")
		return -1
	}

	proc := exec.CommandContext(ctx, "sh", "-c", command)
	proc.Stdout = pw
	proc.Stderr = pw

	if err := proc.Start(); err != nil {
		pr.Close()
		pw.Close()
		emit(fmt.Sprintf("[ERROR] %v\n", err))
		emit("[EXIT -1]\n")
		return -1
	}
	// The child holds its own copy of the write end; closing ours makes
	// the read loop see EOF when the process exits.
	pw.Close()

	reader := bufio.NewReader(pr)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			emit(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				emit(fmt.Sprintf("[ERROR] %v\n", err))
			}
			break
		}
	}
	pr.Close()

	waitErr := proc.Wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		emit("[TIMEOUT]\n")
		emit("[EXIT -1]\n")
		return -1
	}

	code := 0
	if waitErr != nil {
		code = proc.ProcessState.ExitCode()
		if code == 0 {
			code = -1
		}
	}
	emit(fmt.Sprintf("[EXIT %d]\n", code))
	return code
}
