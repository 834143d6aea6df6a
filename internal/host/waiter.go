package host

import (
	"context"
	"sync"
	"time"
)

// waiter hands the next utterance to at most one pending question.
type waiter struct {
	mu sync.Mutex
	ch chan string
}

func (w *waiter) install() chan string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ch = make(chan string, 1)
	return w.ch
}

func (w *waiter) clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ch = nil
}

// deliver reports whether a question was waiting for utterance.
func (w *waiter) deliver(utterance string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ch == nil {
		return false
	}
	select {
	case w.ch <- utterance:
	default:
	}
	return true
}

// await returns the delivered utterance, or "" once timeout elapses.
func await(ctx context.Context, ch chan string, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case u := <-ch:
		return u, nil
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
