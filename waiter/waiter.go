// Package waiter implements the condition-variable-equivalent primitive
// every socket ready-queue and connection listener-queue blocks on:
// Wait, WaitFor(timeout), and NotifyOne. See SPEC_FULL.md §4.2, §4.6.
//
// It is built on golang.org/x/sync/semaphore.Weighted, which gives the
// acquire/try-acquire/release(n) contract §4.6 describes directly — Wait is
// Acquire(ctx, 1), WaitFor with a non-positive timeout is TryAcquire(1),
// NotifyOne is Release(1).
package waiter

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/semaphore"
)

// maxPermits is effectively unbounded: this is a notification counter, not
// a resource pool with a meaningful cap.
const maxPermits = math.MaxInt64

// Waiter is a single-slot wait/notify point. Consumers must re-check their
// queue after waking: a notification is conservative (it may latch as a
// spare permit on the underlying semaphore if nobody was waiting), never
// lossy, so the only safe consumer pattern is "check queue, else wait, then
// check queue again" — exactly SPEC_FULL.md §4.2's contract.
type Waiter struct {
	sem *semaphore.Weighted

	// irq is the softirq-equivalent worker this Waiter's IRQ-safe notify
	// path defers onto. See SoftIRQ doc comment for the hazard this avoids.
	irq *SoftIRQ
}

// New creates a Waiter. irq may be nil if this Waiter is never notified
// from interrupt context; NotifyOneIRQ then releases inline. Socket and
// connection waiters fed from the receive path should supply a real
// SoftIRQ.
func New(irq *SoftIRQ) *Waiter {
	sem := semaphore.NewWeighted(maxPermits)
	// A new Weighted semaphore has every permit free; hold them all so a
	// permit only becomes available through a notification.
	sem.TryAcquire(maxPermits)
	return &Waiter{sem: sem, irq: irq}
}

// Wait blocks until a future NotifyOne.
func (w *Waiter) Wait() {
	// Acquire against context.Background() never returns an error; the
	// weighted semaphore only errors on ctx cancellation or n >
	// capacity, neither of which applies here.
	_ = w.sem.Acquire(context.Background(), 1)
}

// WaitFor blocks for at most d and reports whether a notification arrived
// in that window.
func (w *Waiter) WaitFor(d time.Duration) bool {
	if d <= 0 {
		return w.sem.TryAcquire(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return w.sem.Acquire(ctx, 1) == nil
}

// NotifyOne wakes at most one waiter. Call only from task (non-interrupt)
// context; interrupt handlers must use NotifyOneIRQ.
func (w *Waiter) NotifyOne() {
	w.sem.Release(1)
}

// NotifyOneIRQ is the IRQ-safe release variant (SPEC_FULL.md §4.6, §5
// "IRQ-safe rule", §9 "Unsolicited ACK reentrancy"). The driver ISR / ingress
// decode path runs with interrupts effectively disabled; releasing the
// semaphore inline can reschedule the calling context immediately, which a
// real interrupt handler must never do. Instead, the release is deferred
// onto the softirq worker so it happens from ordinary task context shortly
// after the interrupt returns, resolving the TODO SPEC_FULL.md §9 calls out
// ("the source notes a TODO that the same lock could be held on the woken
// path") by separating the ISR fast path from the worker that performs the
// wake, rather than trying to make the semaphore's internal lock
// interrupt-disabling.
func (w *Waiter) NotifyOneIRQ() {
	if w.irq == nil {
		w.sem.Release(1)
		return
	}
	w.irq.Defer(func() { w.sem.Release(1) })
}
