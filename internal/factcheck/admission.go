package factcheck

import "sync"

// admitQueue grants in-flight slots in the order claims were queued.
// A plain buffered-channel semaphore lets the scheduler pick which
// blocked goroutine runs next; reserving a place in line at enqueue
// time keeps admission first-come first-served.
type admitQueue struct {
	mu      sync.Mutex
	slots   int
	inUse   int
	waiters []chan struct{}
}

func newAdmitQueue(slots int) *admitQueue {
	return &admitQueue{slots: slots}
}

// enqueue reserves a place in line and returns a ticket channel that is
// closed when the claim may run. Callers that give up before their turn
// must call abandon with the same ticket.
func (q *admitQueue) enqueue() chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	ticket := make(chan struct{})
	if q.inUse < q.slots {
		q.inUse++
		close(ticket)
		return ticket
	}
	q.waiters = append(q.waiters, ticket)
	return ticket
}

// release frees a slot, handing it to the head of the line when anyone
// is waiting.
func (q *admitQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiters) > 0 {
		head := q.waiters[0]
		q.waiters = q.waiters[1:]
		close(head)
		return
	}
	q.inUse--
}

// abandon withdraws a ticket. A still-waiting ticket leaves the line;
// a ticket whose slot was already granted releases that slot instead.
func (q *admitQueue) abandon(ticket chan struct{}) {
	q.mu.Lock()
	for i, w := range q.waiters {
		if w == ticket {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			q.mu.Unlock()
			return
		}
	}
	q.mu.Unlock()
	q.release()
}

// waiting reports how many claims are queued behind the cap.
func (q *admitQueue) waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
