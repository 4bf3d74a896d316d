package modelscope

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/imggen-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := NewProvider(Config{BaseURL: srv.URL, APIKey: "ms-key"}, setupTestLogger())
	require.NoError(t, err)
	return p
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(Config{}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewProvider(Config{APIKey: "k", BaseURL: "::not a url"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	p, err := NewProvider(Config{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, p.baseURL.String())

	p, err = NewProvider(Config{APIKey: "k", BaseURL: "https://proxy.example/modelscope"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.example/modelscope/", p.baseURL.String())
}

func TestProvider_Submit(t *testing.T) {
	t.Parallel()

	var got submitRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer ms-key", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.Header.Get("X-ModelScope-Async-Mode"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"task_id":"ms-123","request_id":"r"}`))
	})

	handle, err := p.Submit(context.Background(), "a lighthouse", "Tongyi-MAI/Z-Image-Turbo")
	require.NoError(t, err)
	assert.Equal(t, "ms-123", handle)
	assert.Equal(t, submitRequest{Model: "Tongyi-MAI/Z-Image-Turbo", Prompt: "a lighthouse"}, got)
}

func TestProvider_SubmitErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusServiceUnavailable, `{}`, generation.ErrSubmitFailed},
		{"rate limited", http.StatusTooManyRequests, `{}`, generation.ErrSubmitFailed},
		{"missing task id", http.StatusOK, `{}`, generation.ErrInvalidResponse},
		{"malformed json", http.StatusOK, `{"task_id":`, generation.ErrInvalidResponse},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := p.Submit(context.Background(), "p", "m")
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestProvider_Poll(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    generation.JobResult
		wantErr error
	}{
		{"pending", `{"task_status":"PENDING"}`, generation.JobResult{State: generation.JobPending}, nil},
		{"running", `{"task_status":"RUNNING"}`, generation.JobResult{State: generation.JobPending}, nil},
		{"unknown status is pending", `{}`, generation.JobResult{State: generation.JobPending}, nil},
		{
			"succeeded",
			`{"task_status":"SUCCEED","output_images":["https://img/1.png","https://img/2.png"]}`,
			generation.JobResult{State: generation.JobSucceeded, ArtifactURL: "https://img/1.png"},
			nil,
		},
		{"failed", `{"task_status":"FAILED"}`, generation.JobResult{State: generation.JobFailed}, nil},
		{"succeeded without image", `{"task_status":"SUCCEED","output_images":[]}`, generation.JobResult{}, generation.ErrInvalidResponse},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/v1/tasks/ms-123", r.URL.Path)
				assert.Equal(t, "image_generation", r.Header.Get("X-ModelScope-Task-Type"))
				assert.Equal(t, "Bearer ms-key", r.Header.Get("Authorization"))
				_, _ = w.Write([]byte(tc.body))
			})

			got, err := p.Poll(context.Background(), "ms-123")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestProvider_PollHTTPError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.Poll(context.Background(), "ms-123")
	assert.ErrorIs(t, err, generation.ErrPollFailed)
	assert.Contains(t, err.Error(), "status 502")
}

func TestProvider_PollTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	p, err := NewProvider(Config{BaseURL: srv.URL, APIKey: "k"}, setupTestLogger())
	require.NoError(t, err)

	_, err = p.Poll(context.Background(), "x")
	assert.ErrorIs(t, err, generation.ErrPollFailed)
}
