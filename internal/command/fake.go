package command

import (
	"fmt"
	"sync"
	"time"
)

// FakeRunner is a scripted Runner for tests. Results are queued per binary
// name and consumed in order; the last queued result repeats once the queue
// is drained. Binaries not registered via AddExecutable fail LookPath.
type FakeRunner struct {
	mu      sync.Mutex
	exes    map[string]bool
	scripts map[string][]scriptedResult
	calls   [][]string
	spawned []*FakeHandle
	// SpawnErr, when set, makes Spawn fail.
	SpawnErr error
}

type scriptedResult struct {
	result Result
	err    error
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		exes:    make(map[string]bool),
		scripts: make(map[string][]scriptedResult),
	}
}

// AddExecutable registers names as present on PATH.
func (f *FakeRunner) AddExecutable(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		f.exes[name] = true
	}
}

// Script queues a result for the next Run of binary.
func (f *FakeRunner) Script(binary string, result Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[binary] = append(f.scripts[binary], scriptedResult{result: result, err: err})
}

func (f *FakeRunner) Run(args []string, timeout time.Duration) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), args...))

	queue := f.scripts[args[0]]
	if len(queue) == 0 {
		return Result{}, nil
	}
	next := queue[0]
	if len(queue) > 1 {
		f.scripts[args[0]] = queue[1:]
	}
	return next.result, next.err
}

func (f *FakeRunner) LookPath(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exes[name] {
		return "/usr/bin/" + name, true
	}
	return "", false
}

func (f *FakeRunner) Spawn(args []string) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SpawnErr != nil {
		return nil, f.SpawnErr
	}
	h := &FakeHandle{Args: append([]string(nil), args...), running: true}
	f.spawned = append(f.spawned, h)
	return h, nil
}

// Calls returns every Run invocation in order.
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// CallsFor returns the Run invocations whose binary matches name.
func (f *FakeRunner) CallsFor(name string) [][]string {
	var out [][]string
	for _, call := range f.Calls() {
		if call[0] == name {
			out = append(out, call)
		}
	}
	return out
}

// Spawned returns every handle created by Spawn, in order.
func (f *FakeRunner) Spawned() []*FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeHandle(nil), f.spawned...)
}

// LastSpawned returns the most recent spawn handle, or nil.
func (f *FakeRunner) LastSpawned() *FakeHandle {
	spawned := f.Spawned()
	if len(spawned) == 0 {
		return nil
	}
	return spawned[len(spawned)-1]
}

// FakeHandle is the Handle produced by FakeRunner.Spawn.
type FakeHandle struct {
	mu         sync.Mutex
	Args       []string
	running    bool
	terminated bool
}

func (h *FakeHandle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *FakeHandle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	h.terminated = true
	return nil
}

func (h *FakeHandle) Wait(timeout time.Duration) error {
	if h.Running() {
		return fmt.Errorf("fake process still running")
	}
	return nil
}

// Terminated reports whether Terminate was called.
func (h *FakeHandle) Terminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

// MarkExited simulates the process ending on its own.
func (h *FakeHandle) MarkExited() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
}
