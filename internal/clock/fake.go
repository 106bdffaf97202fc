/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually driven clock. Alarms fire synchronously, in fire-time
// order, from the goroutine that calls Advance or Set.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	alarms map[int]*fakeAlarm
}

type fakeAlarm struct {
	id int
	at time.Time
	fn func()
}

// NewFake creates a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:    start,
		alarms: make(map[int]*fakeAlarm),
	}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// ScheduleOnce registers fn for at. It does not fire until the clock is moved,
// even if at is already due.
func (f *Fake) ScheduleOnce(at time.Time, fn func()) CancelHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a := &fakeAlarm{id: f.nextID, at: at, fn: fn}
	f.alarms[a.id] = a
	return &fakeHandle{fake: f, id: a.id}
}

// Advance moves the clock forward by d and fires every alarm that became due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()
	f.Set(target)
}

// Set moves the clock to t and fires every alarm due at or before t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	due := make([]*fakeAlarm, 0, len(f.alarms))
	for id, a := range f.alarms {
		if !a.at.After(t) {
			due = append(due, a)
			delete(f.alarms, id)
		}
	}
	f.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].id < due[j].id
		}
		return due[i].at.Before(due[j].at)
	})
	for _, a := range due {
		a.fn()
	}
}

// Pending returns the number of alarms that have not fired or been cancelled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alarms)
}

type fakeHandle struct {
	fake *Fake
	id   int
}

func (h *fakeHandle) Cancel() bool {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	if _, ok := h.fake.alarms[h.id]; !ok {
		return false
	}
	delete(h.fake.alarms, h.id)
	return true
}

var (
	_ Clock  = (*Fake)(nil)
	_ Alarms = (*Fake)(nil)
)
