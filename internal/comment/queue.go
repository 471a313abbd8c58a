package comment

import "sync"

// QueueMax bounds the number of pending comments. The oldest entry is
// dropped when a new one arrives over the cap.
const QueueMax = 10

// Queue holds sanitized comments awaiting injection. Safe for use from
// the poller goroutine and the session loop at the same time.
type Queue struct {
	mu           sync.Mutex
	items        []string
	lastInjected string
}

// NewQueue returns an empty bounded queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a comment, evicting the oldest entry when full. Empty
// strings are ignored.
func (q *Queue) Push(text string) {
	if text == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, text)
	if len(q.items) > QueueMax {
		q.items = q.items[1:]
	}
}

// Len reports the number of pending comments.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PopDeduped removes and returns the oldest comment that differs from
// the one injected last, discarding duplicates on the way. The second
// return is false when nothing usable is queued.
func (q *Queue) PopDeduped() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) > 0 {
		c := q.items[0]
		q.items = q.items[1:]
		if c != "" && c != q.lastInjected {
			q.lastInjected = c
			return c, true
		}
	}
	return "", false
}
