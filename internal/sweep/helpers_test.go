package sweep

import (
	"context"
	"io"
	"io/fs"
	"sync"
	"time"
)

type runCall struct {
	name string
	args []string
}

// fakeRunner serves canned stdout per tool name and records every launch.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []runCall
	outputs map[string]string
	codes   map[string]int
	errs    map[string]error
	// partial output written before a failing tool reports its error
	partial map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: make(map[string]string),
		codes:   make(map[string]int),
		errs:    make(map[string]error),
		partial: make(map[string]string),
	}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{name: name, args: append([]string(nil), args...)})
	out, hasOut := f.outputs[name]
	partial := f.partial[name]
	code := f.codes[name]
	err := f.errs[name]
	f.mu.Unlock()

	if err != nil {
		if partial != "" {
			_, _ = io.WriteString(stdout, partial)
		}
		return -1, err
	}
	if hasOut {
		_, _ = io.WriteString(stdout, out)
	}
	return code, nil
}

func (f *fakeRunner) Calls() []runCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runCall(nil), f.calls...)
}

func (f *fakeRunner) CallsTo(name string) []runCall {
	var out []runCall
	for _, c := range f.Calls() {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

type fakeDescriber struct {
	described []ProcessID
	panicWith any
}

func (d *fakeDescriber) Describe(_ context.Context, pid ProcessID) (ProcessInfo, error) {
	if d.panicWith != nil {
		panic(d.panicWith)
	}
	d.described = append(d.described, pid)
	return ProcessInfo{PID: pid, ParentPID: 1, Name: "proc.exe", CommandLine: "proc.exe --serve"}, nil
}

// countingFS counts how often the bundle is opened, i.e. how many copies ran.
type countingFS struct {
	fs.FS
	mu    sync.Mutex
	opens int
}

func (c *countingFS) Open(name string) (fs.File, error) {
	c.mu.Lock()
	c.opens++
	c.mu.Unlock()
	return c.FS.Open(name)
}

func (c *countingFS) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// recordSleep returns a SleepFunc that records the requested durations
// without waiting.
func recordSleep(waits *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}
