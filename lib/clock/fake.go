// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.registered = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock. Waiters created by After, Sleep,
// and NewTicker fire during Advance once their deadline is reached.
// Safe for concurrent use.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	pending    []*pendingWake
	registered *sync.Cond
}

type pendingWake struct {
	deadline time.Time
	channel  chan time.Time
	// period is non-zero for tickers, which are rearmed after firing.
	period  time.Duration
	stopped bool
}

// Now returns the fake time.
func (fake *FakeClock) Now() time.Time {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.now
}

// After returns a channel that receives when the clock has advanced by
// at least d.
func (fake *FakeClock) After(d time.Duration) <-chan time.Time {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- fake.now
		return channel
	}
	fake.registerLocked(&pendingWake{deadline: fake.now.Add(d), channel: channel})
	return channel
}

// NewTicker returns a ticker driven by Advance.
func (fake *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()

	wake := &pendingWake{
		deadline: fake.now.Add(d),
		channel:  make(chan time.Time, 1),
		period:   d,
	}
	fake.registerLocked(wake)
	return &Ticker{
		C: wake.channel,
		stop: func() {
			fake.mu.Lock()
			defer fake.mu.Unlock()
			wake.stopped = true
		},
	}
}

// Sleep blocks until the clock has advanced by at least d.
func (fake *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-fake.After(d)
}

// Advance moves the clock forward by d and wakes every waiter whose
// deadline has been reached, earliest first. Sends never block: a
// ticker whose buffer is full loses the tick.
func (fake *FakeClock) Advance(d time.Duration) {
	fake.mu.Lock()
	fake.now = fake.now.Add(d)
	target := fake.now

	var due []*pendingWake
	var keep []*pendingWake
	for _, wake := range fake.pending {
		switch {
		case wake.stopped:
		case wake.deadline.After(target):
			keep = append(keep, wake)
		default:
			due = append(due, wake)
			if wake.period > 0 {
				for !wake.deadline.After(target) {
					wake.deadline = wake.deadline.Add(wake.period)
				}
				keep = append(keep, wake)
			}
		}
	}
	fake.pending = keep
	fake.mu.Unlock()

	slices.SortFunc(due, func(a, b *pendingWake) int {
		return a.deadline.Compare(b.deadline)
	})
	for _, wake := range due {
		select {
		case wake.channel <- target:
		default:
		}
	}
}

// WaitForTimers blocks until at least n waiters are pending. Tests call
// it before Advance so a goroutine's Sleep or NewTicker is registered
// before time moves.
func (fake *FakeClock) WaitForTimers(n int) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	for fake.pendingLocked() < n {
		fake.registered.Wait()
	}
}

// PendingCount returns the number of live waiters.
func (fake *FakeClock) PendingCount() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.pendingLocked()
}

func (fake *FakeClock) registerLocked(wake *pendingWake) {
	fake.pending = append(fake.pending, wake)
	fake.registered.Broadcast()
}

func (fake *FakeClock) pendingLocked() int {
	count := 0
	for _, wake := range fake.pending {
		if !wake.stopped {
			count++
		}
	}
	return count
}
