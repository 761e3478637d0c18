package httpapi

import (
	"sync"
	"testing"
)

func TestSessionRegistryAddAndDone(t *testing.T) {
	sr := NewSessionRegistry()

	if sr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", sr.ActiveCount())
	}

	if !sr.Add() {
		t.Error("Add() should return true when not draining")
	}
	if !sr.Add() {
		t.Error("Add() should return true when not draining")
	}
	if sr.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2", sr.ActiveCount())
	}

	sr.Done("a")
	sr.Done("b")
	if sr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after all Done()", sr.ActiveCount())
	}
}

func TestSessionRegistryDraining(t *testing.T) {
	sr := NewSessionRegistry()

	if sr.IsDraining() {
		t.Error("IsDraining() should be false initially")
	}

	if !sr.Add() {
		t.Error("Add() should succeed before draining")
	}

	sr.StartDraining()

	if !sr.IsDraining() {
		t.Error("IsDraining() should be true after StartDraining()")
	}
	if sr.Add() {
		t.Error("Add() should fail while draining")
	}

	// The in-flight session still finishes normally.
	sr.Done("a")
	sr.Wait()
}

func TestSessionRegistryWaitBlocksUntilDone(t *testing.T) {
	sr := NewSessionRegistry()
	sr.Add()

	done := make(chan struct{})
	go func() {
		sr.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait() returned while a session was still active")
	default:
	}

	sr.Done("a")
	<-done
}

func TestSessionRegistryConcurrentAdds(t *testing.T) {
	sr := NewSessionRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sr.Add() {
				sr.Done("")
			}
		}()
	}
	wg.Wait()

	if sr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", sr.ActiveCount())
	}
}

func TestSessionRegistryRegisterAndGet(t *testing.T) {
	sr := NewSessionRegistry()
	sr.Add()

	ps := &pipelineSession{id: "s1"}
	sr.Register(ps)

	if got := sr.Get("s1"); got != ps {
		t.Error("Get should return the registered session")
	}
	if got := sr.Get("missing"); got != nil {
		t.Error("Get for an unknown ID should return nil")
	}

	sr.Done("s1")
	if got := sr.Get("s1"); got != nil {
		t.Error("Get should return nil after Done")
	}
}
