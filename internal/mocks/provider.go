package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/phrazzld/imggen-api/internal/generation"
)

// PollStep is one scripted Poll response.
type PollStep struct {
	Result generation.JobResult
	Err    error
}

// MockProvider implements generation.Provider for testing.
//
// Poll walks through Script; once the script is exhausted the last step
// repeats. With an empty script every poll reports pending.
type MockProvider struct {
	SubmitFn func(ctx context.Context, prompt, model string) (string, error)
	PollFn   func(ctx context.Context, handle string) (generation.JobResult, error)

	SubmitErr error
	Script    []PollStep

	mu          sync.Mutex
	submitCalls int
	pollCalls   int
	prompts     []string
}

var _ generation.Provider = (*MockProvider)(nil)

// NewScriptedProvider returns a provider whose polls follow states in order,
// finishing with a success carrying artifactURL when the final state is
// JobSucceeded.
func NewScriptedProvider(artifactURL string, states ...generation.JobState) *MockProvider {
	script := make([]PollStep, len(states))
	for i, s := range states {
		step := PollStep{Result: generation.JobResult{State: s}}
		if s == generation.JobSucceeded {
			step.Result.ArtifactURL = artifactURL
		}
		script[i] = step
	}
	return &MockProvider{Script: script}
}

// Submit implements generation.Provider.
func (m *MockProvider) Submit(ctx context.Context, prompt, model string) (string, error) {
	m.mu.Lock()
	m.submitCalls++
	n := m.submitCalls
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, prompt, model)
	}
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	return fmt.Sprintf("job-%d", n), nil
}

// Poll implements generation.Provider.
func (m *MockProvider) Poll(ctx context.Context, handle string) (generation.JobResult, error) {
	m.mu.Lock()
	i := m.pollCalls
	m.pollCalls++
	m.mu.Unlock()

	if m.PollFn != nil {
		return m.PollFn(ctx, handle)
	}
	if err := ctx.Err(); err != nil {
		return generation.JobResult{}, err
	}
	if len(m.Script) == 0 {
		return generation.JobResult{State: generation.JobPending}, nil
	}
	if i >= len(m.Script) {
		i = len(m.Script) - 1
	}
	step := m.Script[i]
	return step.Result, step.Err
}

// SubmitCalls returns how many times Submit was called.
func (m *MockProvider) SubmitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCalls
}

// PollCalls returns how many times Poll was called.
func (m *MockProvider) PollCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollCalls
}

// Prompts returns the prompts passed to Submit, in call order.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
