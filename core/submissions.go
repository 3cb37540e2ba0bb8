package chat

import (
	"sync"
	"time"
)

// Submission is a user message waiting to be sent.
type Submission struct {
	Text    string
	Context string

	queuedAt time.Time
}

// SubmissionQueue holds submissions made while an exchange is in flight.
// It is a plain FIFO: no deduplication, no bound and no priorities.
type SubmissionQueue struct {
	mu      sync.Mutex
	pending []Submission
}

func NewSubmissionQueue() *SubmissionQueue {
	return &SubmissionQueue{}
}

func (q *SubmissionQueue) Enqueue(submission Submission) {
	if submission.queuedAt.IsZero() {
		submission.queuedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, submission)
}

// DequeueNext removes and returns the oldest submission.
func (q *SubmissionQueue) DequeueNext() (Submission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Submission{}, false
	}

	next := q.pending[0]
	q.pending[0] = Submission{}
	q.pending = q.pending[1:]
	return next, true
}

func (q *SubmissionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *SubmissionQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
}

// Pending returns the queued submission texts, oldest first.
func (q *SubmissionQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	texts := make([]string, len(q.pending))
	for i, submission := range q.pending {
		texts[i] = submission.Text
	}
	return texts
}
