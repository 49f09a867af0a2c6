// Package commandtest provides a recording command.Runner for tests.
package commandtest

import (
	"context"
	"sync"

	"github.com/oshokin/conda-rpms/internal/command"
)

// Call is one recorded invocation.
type Call struct {
	Name   string
	Args   []string
	Stream bool
}

// Recorder records invocations instead of starting programs.
// Responses are looked up by program name; unknown programs succeed with empty output.
type Recorder struct {
	mu sync.Mutex

	// Calls lists the invocations in order.
	Calls []Call
	// Responses holds canned output per program name.
	Responses map[string]*command.Result
	// Errors holds the error returned per program name.
	Errors map[string]error
	// OnCall, when set, runs for every invocation before the response is returned.
	OnCall func(call Call) error
}

// Output implements command.Runner.
func (r *Recorder) Output(_ context.Context, name string, args ...string) (*command.Result, error) {
	if err := r.record(Call{Name: name, Args: args}); err != nil {
		return &command.Result{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.Responses[name]; ok {
		return res, r.Errors[name]
	}

	return &command.Result{}, r.Errors[name]
}

// Stream implements command.Runner.
func (r *Recorder) Stream(_ context.Context, name string, args ...string) error {
	if err := r.record(Call{Name: name, Args: args, Stream: true}); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.Errors[name]
}

// Named returns the recorded calls of one program.
func (r *Recorder) Named(name string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	var calls []Call

	for _, call := range r.Calls {
		if call.Name == name {
			calls = append(calls, call)
		}
	}

	return calls
}

func (r *Recorder) record(call Call) error {
	r.mu.Lock()
	call.Args = append([]string(nil), call.Args...)
	r.Calls = append(r.Calls, call)
	onCall := r.OnCall
	r.mu.Unlock()

	if onCall != nil {
		return onCall(call)
	}

	return nil
}
