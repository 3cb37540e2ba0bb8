package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
)

func TestSubmissionQueueIsFIFO(t *testing.T) {
	q := NewSubmissionQueue()
	for _, text := range []string{"a", "b", "a"} {
		q.Enqueue(Submission{Text: text})
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 pending submissions without dedupe, got %d", q.Len())
	}

	var order []string
	for {
		next, ok := q.DequeueNext()
		if !ok {
			break
		}
		order = append(order, next.Text)
	}
	if strings.Join(order, ",") != "a,b,a" {
		t.Fatalf("expected a,b,a, got %v", order)
	}
}

func TestSubmissionQueueClear(t *testing.T) {
	q := NewSubmissionQueue()
	q.Enqueue(Submission{Text: "a", Context: "ctx"})
	q.Clear()
	if _, ok := q.DequeueNext(); ok {
		t.Fatalf("expected an empty queue after Clear")
	}
}

func TestSubmissionQueueConcurrentEnqueue(t *testing.T) {
	q := NewSubmissionQueue()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(Submission{Text: "x"})
		}()
	}
	wg.Wait()
	if q.Len() != 50 {
		t.Fatalf("expected 50 submissions, got %d", q.Len())
	}
}

func TestPanicSafeNamedWorkerRecovers(t *testing.T) {
	err := panicSafeNamedWorker("test", func(ctx context.Context) error { panic("boom") })(context.Background())
	if err == nil || !strings.Contains(err.Error(), "test worker panicked") {
		t.Fatalf("expected a recovered panic error, got %v", err)
	}
}
