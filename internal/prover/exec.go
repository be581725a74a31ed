package prover

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// maxStderr bounds the stderr excerpt kept in errors.
const maxStderr = 512

// ExecProver runs an external command per proof. The input is written to
// its stdin and its stdout is the output; a non-zero exit is a failure.
type ExecProver struct {
	Command string
	Args    []string
	Env     []string
	Dir     string
}

// Prove runs the command.
func (p *ExecProver) Prove(ctx context.Context, input []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Op: "exec", Err: ctx.Err()}
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr]
		}
		if msg != "" {
			return nil, &Error{Op: "exec", Err: fmt.Errorf("%w: %s", err, msg)}
		}
		return nil, &Error{Op: "exec", Err: err}
	}
	return stdout.Bytes(), nil
}
