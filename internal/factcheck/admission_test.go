package factcheck

import (
	"testing"
	"time"
)

func granted(t *testing.T, ticket chan struct{}) bool {
	t.Helper()
	select {
	case <-ticket:
		return true
	default:
		return false
	}
}

func TestAdmitQueueGrantsUpToCapImmediately(t *testing.T) {
	q := newAdmitQueue(2)

	a, b, c := q.enqueue(), q.enqueue(), q.enqueue()
	if !granted(t, a) || !granted(t, b) {
		t.Fatal("first two tickets should be granted immediately")
	}
	if granted(t, c) {
		t.Fatal("third ticket granted while the cap is full")
	}
	if q.waiting() != 1 {
		t.Errorf("waiting() = %d, want 1", q.waiting())
	}
}

func TestAdmitQueueReleasesInEnqueueOrder(t *testing.T) {
	q := newAdmitQueue(1)

	first := q.enqueue()
	second := q.enqueue()
	third := q.enqueue()
	<-first

	q.release()
	if !granted(t, second) {
		t.Fatal("second ticket should be granted before the third")
	}
	if granted(t, third) {
		t.Fatal("third ticket granted out of turn")
	}

	q.release()
	select {
	case <-third:
	case <-time.After(time.Second):
		t.Fatal("third ticket never granted")
	}
}

func TestAdmitQueueAbandonRemovesWaiter(t *testing.T) {
	q := newAdmitQueue(1)

	first := q.enqueue()
	second := q.enqueue()
	third := q.enqueue()
	<-first

	q.abandon(second)
	if q.waiting() != 1 {
		t.Fatalf("waiting() = %d, want 1 after abandoning a waiter", q.waiting())
	}

	q.release()
	if !granted(t, third) {
		t.Error("third ticket should inherit the slot the abandoned waiter skipped")
	}
}

func TestAdmitQueueAbandonGrantedTicketFreesSlot(t *testing.T) {
	q := newAdmitQueue(1)

	first := q.enqueue()
	second := q.enqueue()
	<-first

	// The holder gave up after being admitted; its slot moves on.
	q.abandon(first)
	if !granted(t, second) {
		t.Error("slot should pass to the next waiter")
	}
}
