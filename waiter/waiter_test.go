package waiter

import (
	"testing"
	"time"
)

func TestWaitForTimesOut(t *testing.T) {
	w := New(nil)
	start := time.Now()
	if w.WaitFor(20 * time.Millisecond) {
		t.Fatal("WaitFor returned true with no notification pending")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("WaitFor returned too early: %v", elapsed)
	}
}

func TestNotifyOneWakesWaiter(t *testing.T) {
	w := New(nil)
	woke := make(chan struct{})
	go func() {
		w.Wait()
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	w.NotifyOne()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Wait never woke after NotifyOne")
	}
}

func TestNotifyOneIRQDefersThroughSoftIRQ(t *testing.T) {
	irq := NewSoftIRQ(4)
	defer irq.Stop()

	w := New(irq)
	woke := make(chan struct{})
	go func() {
		w.Wait()
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	w.NotifyOneIRQ()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Wait never woke after NotifyOneIRQ")
	}
}
