package memoryindex

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingEmbedder struct {
	failures int
	calls    int
	err      error
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, c.err
	}
	return []Embedding{{1, 2, 3}}, nil
}

func TestRetryingEmbedderRetriesRetryableErrors(t *testing.T) {
	inner := &countingEmbedder{failures: 2, err: &RateLimitError{Message: "slow down"}}
	r := NewRetryingEmbedder(inner, RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond})

	_, err := r.EmbedBatch(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3 (1 initial + 2 retries)", inner.calls)
	}
}

func TestRetryingEmbedderStopsOnNonRetryableError(t *testing.T) {
	inner := &countingEmbedder{failures: 1, err: errors.New("bad request")}
	r := NewRetryingEmbedder(inner, RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond})

	_, err := r.EmbedBatch(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retries on non-retryable error)", inner.calls)
	}
}

func TestRetryingEmbedderExhaustsRetries(t *testing.T) {
	inner := &countingEmbedder{failures: 99, err: &InternalServerError{Message: "down"}}
	r := NewRetryingEmbedder(inner, RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond})

	_, err := r.EmbedBatch(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3 (1 initial + 2 retries)", inner.calls)
	}
}

func TestHTTPStatusErrorRetryClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{404, false},
	}
	for _, c := range cases {
		err := &HTTPStatusError{StatusCode: c.status, Message: "x"}
		if got := isRetryable(err); got != c.retryable {
			t.Errorf("status %d: isRetryable = %v, want %v", c.status, got, c.retryable)
		}
	}
}
