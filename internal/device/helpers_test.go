package device

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type call struct {
	name string
	args []string
}

func (c call) String() string {
	return strings.Join(append([]string{c.name}, c.args...), " ")
}

// fakeRunner records invocations and answers from a table keyed by command line
type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	outputs map[string]string
	fail    map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, fail: map[string]bool{}}
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := call{name: name, args: args}
	f.calls = append(f.calls, c)
	line := c.String()
	if f.fail[line] {
		return nil, []byte("device busy"), errors.New("exit status 1")
	}
	return []byte(f.outputs[line]), nil, nil
}

func (f *fakeRunner) commandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

func udevLine(node string) string {
	return "udevadm info --query=property --name=" + node
}
