// Package exec runs the external rasterizer binaries, feeding the document on
// stdin and capturing the image from stdout.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"strings"
	"time"

	"github.com/flanksource/commons/logger"
)

type Process struct {
	Started  *time.Time
	Duration time.Duration
	Env      map[string]string
	Err      error
	Log      logger.Logger
	Stdin    []byte
	Stderr   bytes.Buffer
	Stdout   bytes.Buffer
	Cmd      string
	Args     []string
	cmd      *osexec.Cmd
}

// New creates a process for the binary name with its arguments.
func New(name string, args ...string) Process {
	return Process{Cmd: name, Args: args, Log: logger.GetLogger("exec")}
}

// LookPath reports whether the binary is on the PATH.
func LookPath(name string) bool {
	_, err := osexec.LookPath(name)
	return err == nil
}

func (p Process) Out() string {
	return strings.TrimSpace(p.Stderr.String() + p.Stdout.String())
}

func (p Process) String() string {
	return strings.TrimSpace(p.Cmd + " " + strings.Join(p.Args, " "))
}

func (p Process) WithEnv(env map[string]string) Process {
	p.Env = env
	return p
}

func (p Process) WithLogger(log logger.Logger) Process {
	p.Log = log
	return p
}

func (p Process) WithStdin(data []byte) Process {
	p.Stdin = data
	return p
}

// Run executes the process to completion, the process is killed when ctx is done.
func (p Process) Run(ctx context.Context) Process {
	p.cmd = osexec.CommandContext(ctx, p.Cmd, p.Args...)
	p.cmd.Stderr = &p.Stderr
	p.cmd.Stdout = &p.Stdout
	if p.Stdin != nil {
		p.cmd.Stdin = bytes.NewReader(p.Stdin)
	}

	if len(p.Env) > 0 {
		p.cmd.Env = os.Environ()
		for k, v := range p.Env {
			p.cmd.Env = append(p.cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	start := time.Now()
	p.Started = &start
	p.Err = p.cmd.Run()
	p.Duration = time.Since(start)

	if p.Log != nil {
		p.Log.Debugf("%s finished in %s (stdout=%d bytes, err=%v)", p.Cmd, p.Duration, p.Stdout.Len(), p.Err)
	}
	return p
}

func (p Process) IsOK() bool {
	return p.Err == nil && p.cmd != nil && p.cmd.ProcessState != nil && p.cmd.ProcessState.Success()
}

// Error describes a failed run including whatever the process printed to stderr.
func (p Process) Error() error {
	if p.IsOK() {
		return nil
	}
	if p.Err == nil {
		return fmt.Errorf("%s did not complete", p.Cmd)
	}
	if out := strings.TrimSpace(p.Stderr.String()); out != "" {
		return fmt.Errorf("%s: %w: %s", p.Cmd, p.Err, out)
	}
	return fmt.Errorf("%s: %w", p.Cmd, p.Err)
}
