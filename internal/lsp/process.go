package lsp

import (
	"bufio"
	"io"
	"os/exec"
)

// serverProcess is the subprocess handle: pid, stdio streams, and an exit
// channel. It is owned exclusively by the harness, created on Start and
// destroyed on Stop or unexpected exit.
type serverProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	exitCh chan error
}

// startServerProcess spawns the server executable with piped stdio and the
// workspace root as its working directory.
func startServerProcess(command string, args []string, workspaceRoot string) (*serverProcess, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = workspaceRoot

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &StartError{Command: command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, &StartError{Command: command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, &StartError{Command: command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, &StartError{Command: command, Err: err}
	}

	p := &serverProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		exitCh: make(chan error, 1),
	}

	go func() {
		p.exitCh <- cmd.Wait()
	}()

	return p, nil
}

// pid returns the process id, or 0 if unknown.
func (p *serverProcess) pid() int {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// kill force-terminates the process and closes its pipes. Idempotent.
func (p *serverProcess) kill() {
	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.stdout != nil {
		p.stdout.Close()
	}
	if p.stderr != nil {
		p.stderr.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// drainStderr forwards server stderr lines to the diagnostic sink. Stderr is
// never parsed as protocol data.
func (p *serverProcess) drainStderr(log Logger) {
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		log.Debug("server stderr: %s", scanner.Text())
	}
}
