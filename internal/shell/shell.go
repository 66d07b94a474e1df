// Package shell runs external commands and captures their output.
//
// The DjVu tools (djvudump, djvmcvt) are invoked through the Runner
// interface so the bundling core can be exercised in tests without the
// DjVuLibre toolchain installed.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result captures one command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a command and reports its output and exit code.
// A non-zero exit code is returned in Result, not as an error; the error
// is reserved for failures to start the process at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// Run executes name with args, blocking until the process exits.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("shell: %s: %w", name, err)
	}
	return res, nil
}

// FakeCall records one invocation seen by a Fake runner.
type FakeCall struct {
	Name string
	Args []string
}

// Fake is a scripted Runner for tests. Responses are keyed by command
// name; unknown commands fail with exit code 127. An optional OnRun hook
// runs before the response is returned, so tests can create the files a
// real tool would have produced.
type Fake struct {
	Responses map[string]Result
	OnRun     func(name string, args []string)
	Calls     []FakeCall
}

// Run returns the scripted response for name.
func (f *Fake) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.Calls = append(f.Calls, FakeCall{Name: name, Args: args})
	if f.OnRun != nil {
		f.OnRun(name, args)
	}
	res, ok := f.Responses[name]
	if !ok {
		return Result{
			Stderr:   fmt.Sprintf("%s: command not found", name),
			ExitCode: 127,
		}, nil
	}
	return res, nil
}

// CalledWith reports whether a command with the given name was run with
// the given argument present.
func (f *Fake) CalledWith(name, arg string) bool {
	for _, c := range f.Calls {
		if c.Name != name {
			continue
		}
		for _, a := range c.Args {
			if strings.Contains(a, arg) {
				return true
			}
		}
	}
	return false
}
