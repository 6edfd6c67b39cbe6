package stt

import (
	"context"
	"sync"
)

// FakeEngine replays scripted segments. It exists for tests and for
// running the pipeline without a transcription backend.
type FakeEngine struct {
	mu       sync.Mutex
	segments []Segment
	errs     []error
	calls    int

	// Prompts records the biasing prompt of each call, in order.
	Prompts []string
}

func NewFakeEngine(segments ...Segment) *FakeEngine {
	return &FakeEngine{segments: segments}
}

// FailWith queues errors returned before any scripted segments are used.
func (f *FakeEngine) FailWith(errs ...error) *FakeEngine {
	f.errs = append(f.errs, errs...)
	return f
}

func (f *FakeEngine) Transcribe(
	_ context.Context,
	_ []byte,
	_ int,
	prompt string,
) (Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Prompts = append(f.Prompts, prompt)

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return Segment{}, err
	}

	if f.calls >= len(f.segments) {
		return Segment{}, nil
	}
	seg := f.segments[f.calls]
	f.calls++
	return seg, nil
}

func (f *FakeEngine) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
