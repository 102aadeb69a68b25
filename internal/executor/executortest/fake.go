// Package executortest provides a scripted Executor for tests.
package executortest

import (
	"sync"

	"github.com/sigreer/vmcrypt/internal/executor"
)

// Response is the canned outcome for one command line
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Fake answers commands from a table keyed by command line. Shell scripts are
// keyed by the script text. Unknown commands exit 127.
type Fake struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []string
}

// New creates an empty fake
func New() *Fake {
	return &Fake{responses: make(map[string]Response)}
}

// On registers a response and returns the fake for chaining
func (f *Fake) On(line string, exitCode int, stdout string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = Response{ExitCode: exitCode, Stdout: stdout}
	return f
}

// OnResponse registers a full response
func (f *Fake) OnResponse(line string, r Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = r
	return f
}

// Calls returns every command line seen, in order
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many times line was executed
func (f *Fake) Count(line string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == line {
			n++
		}
	}
	return n
}

// Execute implements executor.Executor
func (f *Fake) Execute(cmd executor.Command) (*executor.Result, error) {
	return f.run(cmd.String(), cmd.Strict)
}

// ExecuteInShell implements executor.Executor
func (f *Fake) ExecuteInShell(script string, strict, quiet bool) (*executor.Result, error) {
	return f.run(script, strict)
}

func (f *Fake) run(line string, strict bool) (*executor.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, line)
	r, ok := f.responses[line]
	f.mu.Unlock()

	if !ok {
		r = Response{ExitCode: 127, Stderr: "not scripted: " + line}
	}
	res := &executor.Result{ExitCode: r.ExitCode, Stdout: r.Stdout, Stderr: r.Stderr}
	if strict && r.ExitCode != 0 {
		return res, &executor.ToolExecutionError{Command: line, ExitCode: r.ExitCode, Stderr: r.Stderr}
	}
	return res, nil
}
