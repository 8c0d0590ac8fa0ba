package llm

import (
	"context"
	"testing"
)

// MockProvider is a test double that satisfies the Provider interface.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, messages []Message) (*Response, error)
}

func (m *MockProvider) Complete(ctx context.Context, messages []Message) (*Response, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages)
	}
	return &Response{Content: "mock response"}, nil
}

func TestProviderInterface(t *testing.T) {
	var provider Provider = &MockProvider{}

	resp, err := provider.Complete(context.Background(), []Message{{Role: "user", Content: "test"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content == "" {
		t.Error("expected non-empty response")
	}
}

func TestMockProviderCustomComplete(t *testing.T) {
	mock := &MockProvider{
		CompleteFunc: func(ctx context.Context, messages []Message) (*Response, error) {
			return &Response{
				Content: "custom response",
				Usage: Usage{
					InputTokens:  10,
					OutputTokens: 5,
					TotalTokens:  15,
				},
			}, nil
		},
	}

	var provider Provider = mock
	resp, err := provider.Complete(context.Background(), []Message{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "custom response" {
		t.Errorf("expected 'custom response', got %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}
