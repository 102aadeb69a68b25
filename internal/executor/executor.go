package executor

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrToolExecution is wrapped by every ToolExecutionError
var ErrToolExecution = errors.New("tool execution failed")

// DefaultShell runs ExecuteInShell scripts
const DefaultShell = "/bin/bash"

// Command describes one external tool invocation
type Command struct {
	Path  string
	Args  []string
	Input string // fed to stdin when non-empty

	// Strict turns a non-zero exit into a ToolExecutionError
	Strict bool

	// Quiet logs the invocation at debug level only
	Quiet bool
}

// String renders the command line the way it would be typed
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Result holds what a finished process reported
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports a zero exit code
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// ToolExecutionError is returned for a failed strict invocation
type ToolExecutionError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ToolExecutionError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolExecutionError) Unwrap() error {
	return ErrToolExecution
}

// Executor runs external tools. Calls block until the child exits.
type Executor interface {
	Execute(cmd Command) (*Result, error)
	ExecuteInShell(script string, strict, quiet bool) (*Result, error)
}

// OSExecutor runs commands with os/exec
type OSExecutor struct {
	logger *log.Entry
	shell  string
}

// New creates an executor that logs through logger
func New(logger *log.Entry) *OSExecutor {
	if logger == nil {
		logger = log.WithField("component", "executor")
	}
	return &OSExecutor{logger: logger, shell: DefaultShell}
}

// Execute runs cmd and captures its output
func (e *OSExecutor) Execute(cmd Command) (*Result, error) {
	line := cmd.String()
	if cmd.Quiet {
		e.logger.Debugf("executing: %s", line)
	} else {
		e.logger.Infof("executing: %s", line)
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if cmd.Input != "" {
		c.Stdin = strings.NewReader(cmd.Input)
	}

	res := &Result{}
	err := c.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// process never started
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
	}

	if res.ExitCode != 0 {
		if !cmd.Quiet {
			e.logger.Warnf("%s returned %d: %s", line, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		if cmd.Strict {
			return res, &ToolExecutionError{Command: line, ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
	}

	return res, nil
}

// ExecuteInShell runs script through bash so pipes and substitutions work
func (e *OSExecutor) ExecuteInShell(script string, strict, quiet bool) (*Result, error) {
	return e.Execute(Command{
		Path:   e.shell,
		Args:   []string{"-c", script},
		Strict: strict,
		Quiet:  quiet,
	})
}
