/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/powerdown/internal/clock"
	"github.com/friendsincode/powerdown/internal/events"
	"github.com/friendsincode/powerdown/internal/executor"
	"github.com/friendsincode/powerdown/internal/models"
	"github.com/friendsincode/powerdown/internal/target"
)

type countingExecutor struct {
	calls atomic.Int32
	err   error
}

func (e *countingExecutor) Execute(ctx context.Context) error {
	e.calls.Add(1)
	return e.err
}

var refNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newTestController(t *testing.T) (*Controller, *clock.Fake, *countingExecutor, *events.Bus) {
	t.Helper()
	fake := clock.NewFake(refNow)
	exec := &countingExecutor{}
	bus := events.NewBus()
	c := New(fake, fake, exec, bus, Options{}, zerolog.Nop())
	return c, fake, exec, bus
}

func TestTimeOfDayRolloverArms(t *testing.T) {
	c, fake, _, _ := newTestController(t)

	state, err := c.Start(target.AtTimeOfDay(9, 0))
	if err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	if state != models.ScheduleStateArmed {
		t.Fatalf("Start() state=%s, want armed", state)
	}

	st := c.Status()
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if !st.FireAt.Equal(want) {
		t.Fatalf("FireAt=%v, want %v", st.FireAt, want)
	}
	if st.Remaining == nil || *st.Remaining != 23*time.Hour {
		t.Fatalf("Remaining=%v, want 23h", st.Remaining)
	}
	if fake.Pending() != 1 {
		t.Fatalf("Pending()=%d, want 1", fake.Pending())
	}
}

func TestShortDelayRejectReturnsToIdle(t *testing.T) {
	c, fake, exec, _ := newTestController(t)

	state, err := c.Start(target.After(0, 3))
	if err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	if state != models.ScheduleStateAwaitingConfirmation {
		t.Fatalf("Start() state=%s, want awaiting_confirmation", state)
	}
	if fake.Pending() != 0 {
		t.Fatal("short delay armed an alarm before confirmation")
	}
	if got := c.Status().FireAt; !got.Equal(refNow.Add(3 * time.Minute)) {
		t.Fatalf("FireAt=%v, want 10:03", got)
	}

	state, err = c.Reject()
	if err != nil {
		t.Fatalf("Reject() err=%v", err)
	}
	if state != models.ScheduleStateIdle {
		t.Fatalf("Reject() state=%s, want idle", state)
	}

	fake.Advance(time.Hour)
	if exec.calls.Load() != 0 {
		t.Fatal("executor ran after reject")
	}
}

func TestShortDelayConfirmFires(t *testing.T) {
	c, fake, exec, _ := newTestController(t)

	if _, err := c.Start(target.After(0, 3)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}

	fake.Advance(time.Minute)

	state, err := c.Confirm()
	if err != nil {
		t.Fatalf("Confirm() err=%v", err)
	}
	if state != models.ScheduleStateArmed {
		t.Fatalf("Confirm() state=%s, want armed", state)
	}

	st := c.Status()
	if !st.FireAt.Equal(refNow.Add(3 * time.Minute)) {
		t.Fatalf("FireAt moved to %v after confirm", st.FireAt)
	}
	if !st.Confirmed {
		t.Fatal("Confirmed=false after Confirm")
	}

	fake.Set(refNow.Add(3*time.Minute - time.Second))
	if exec.calls.Load() != 0 {
		t.Fatal("executor ran before fire instant")
	}

	fake.Set(refNow.Add(3 * time.Minute))
	if exec.calls.Load() != 1 {
		t.Fatalf("executor calls=%d, want 1", exec.calls.Load())
	}
	if got := c.Status().State; got != models.ScheduleStateCompleted {
		t.Fatalf("state=%s, want completed", got)
	}
}

func TestCancelPreventsExecution(t *testing.T) {
	c, fake, exec, _ := newTestController(t)

	if state, err := c.Start(target.After(1, 0)); err != nil || state != models.ScheduleStateArmed {
		t.Fatalf("Start() state=%s err=%v, want armed", state, err)
	}

	state, err := c.Cancel()
	if err != nil {
		t.Fatalf("Cancel() err=%v", err)
	}
	if state != models.ScheduleStateIdle {
		t.Fatalf("Cancel() state=%s, want idle", state)
	}
	if fake.Pending() != 0 {
		t.Fatal("alarm still pending after cancel")
	}

	fake.Advance(2 * time.Hour)
	if exec.calls.Load() != 0 {
		t.Fatal("executor ran after cancel")
	}
	if st := c.Status(); st.State != models.ScheduleStateIdle || st.Remaining != nil {
		t.Fatalf("Status()=%+v, want idle with nil remaining", st)
	}
}

func TestStartWhileArmedRejected(t *testing.T) {
	c, _, _, _ := newTestController(t)

	if _, err := c.Start(target.After(1, 0)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	before := c.Status()

	state, err := c.Start(target.AtTimeOfDay(23, 0))
	if !errors.Is(err, ErrAlreadyScheduled) {
		t.Fatalf("second Start() err=%v, want %v", err, ErrAlreadyScheduled)
	}
	if state != models.ScheduleStateArmed {
		t.Fatalf("second Start() state=%s, want armed", state)
	}

	after := c.Status()
	if after.ScheduleID != before.ScheduleID || !after.FireAt.Equal(before.FireAt) {
		t.Fatalf("schedule changed: before=%+v after=%+v", before, after)
	}
}

func TestStartWhileAwaiting(t *testing.T) {
	c, _, _, _ := newTestController(t)

	if _, err := c.Start(target.After(0, 1)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	if _, err := c.Start(target.After(2, 0)); !errors.Is(err, ErrAlreadyScheduled) {
		t.Fatalf("Start() err=%v, want %v", err, ErrAlreadyScheduled)
	}
}

func TestStartInvalidTarget(t *testing.T) {
	c, fake, _, _ := newTestController(t)

	tests := []target.Target{
		target.After(0, 0),
		target.After(0, 60),
		target.After(-1, 0),
		target.AtTimeOfDay(24, 0),
		target.AtTimeOfDay(0, -1),
	}
	for _, tt := range tests {
		state, err := c.Start(tt)
		if !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("Start(%+v) err=%v, want %v", tt, err, ErrInvalidTarget)
		}
		if state != models.ScheduleStateIdle {
			t.Errorf("Start(%+v) state=%s, want idle", tt, state)
		}
	}
	if fake.Pending() != 0 {
		t.Fatal("invalid target armed an alarm")
	}
}

func TestShortDelayGate(t *testing.T) {
	tests := []struct {
		name string
		tgt  target.Target
		want models.ScheduleState
	}{
		{"one minute", target.After(0, 1), models.ScheduleStateAwaitingConfirmation},
		{"four minutes", target.After(0, 4), models.ScheduleStateAwaitingConfirmation},
		{"exactly threshold", target.After(0, 5), models.ScheduleStateArmed},
		{"time of day soon", target.AtTimeOfDay(10, 2), models.ScheduleStateAwaitingConfirmation},
		{"time of day later", target.AtTimeOfDay(10, 30), models.ScheduleStateArmed},
		{"rolled over", target.AtTimeOfDay(10, 0), models.ScheduleStateArmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _, _ := newTestController(t)
			state, err := c.Start(tt.tgt)
			if err != nil {
				t.Fatalf("Start() err=%v", err)
			}
			if state != tt.want {
				t.Fatalf("Start() state=%s, want %s", state, tt.want)
			}
		})
	}
}

func TestInvalidStateOperations(t *testing.T) {
	c, _, _, _ := newTestController(t)

	ops := map[string]func() (models.ScheduleState, error){
		"confirm": c.Confirm,
		"reject":  c.Reject,
		"cancel":  c.Cancel,
	}
	for name, op := range ops {
		state, err := op()
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("%s from idle err=%v, want %v", name, err, ErrInvalidState)
		}
		if state != models.ScheduleStateIdle {
			t.Errorf("%s from idle state=%s, want idle", name, state)
		}
	}

	if _, err := c.Start(target.After(1, 0)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	if _, err := c.Confirm(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("confirm while armed err=%v, want %v", err, ErrInvalidState)
	}
	if _, err := c.Reject(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reject while armed err=%v, want %v", err, ErrInvalidState)
	}
}

func TestCancelWhileAwaiting(t *testing.T) {
	c, _, _, _ := newTestController(t)

	if _, err := c.Start(target.After(0, 2)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	state, err := c.Cancel()
	if err != nil || state != models.ScheduleStateIdle {
		t.Fatalf("Cancel() state=%s err=%v, want idle", state, err)
	}
}

func TestStatusIsIdempotent(t *testing.T) {
	c, _, _, _ := newTestController(t)

	if _, err := c.Start(target.After(2, 15)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}

	first := c.Status()
	second := c.Status()
	if first.State != second.State || first.ScheduleID != second.ScheduleID ||
		!first.FireAt.Equal(second.FireAt) || *first.Remaining != *second.Remaining {
		t.Fatalf("Status() not idempotent: %+v vs %+v", first, second)
	}
	if *first.Remaining != 2*time.Hour+15*time.Minute {
		t.Fatalf("Remaining=%v, want 2h15m", *first.Remaining)
	}
}

func TestStatusRemainingCountsDown(t *testing.T) {
	c, fake, _, _ := newTestController(t)

	if _, err := c.Start(target.After(0, 10)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	fake.Advance(4*time.Minute + 30*time.Second)

	st := c.Status()
	if *st.Remaining != 5*time.Minute+30*time.Second {
		t.Fatalf("Remaining=%v, want 5m30s", *st.Remaining)
	}
	if secs := st.RemainingSeconds(); secs == nil || *secs != 330 {
		t.Fatalf("RemainingSeconds()=%v, want 330", secs)
	}
}

func TestExecutorFailureRetained(t *testing.T) {
	fake := clock.NewFake(refNow)
	exec := &countingExecutor{err: executor.ErrExecFailed}
	c := New(fake, fake, exec, nil, Options{}, zerolog.Nop())

	if _, err := c.Start(target.After(0, 30)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	fake.Advance(30 * time.Minute)

	st := c.Status()
	if st.State != models.ScheduleStateFailed {
		t.Fatalf("state=%s, want failed", st.State)
	}
	if st.Error == "" {
		t.Fatal("Status().Error empty after failure")
	}
	if *st.Remaining != 0 {
		t.Fatalf("Remaining=%v, want 0", *st.Remaining)
	}

	fake.Advance(time.Hour)
	if exec.calls.Load() != 1 {
		t.Fatalf("executor calls=%d, want 1 (no retry)", exec.calls.Load())
	}

	if _, err := c.Cancel(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Cancel() after failure err=%v, want %v", err, ErrInvalidState)
	}

	// A new Start resets the failed schedule.
	state, err := c.Start(target.After(1, 0))
	if err != nil || state != models.ScheduleStateArmed {
		t.Fatalf("Start() after failure state=%s err=%v", state, err)
	}
	if st := c.Status(); st.Error != "" || st.ScheduleID == "" {
		t.Fatalf("Status() after restart=%+v", st)
	}
}

func TestConfirmAfterFireInstantPassed(t *testing.T) {
	c, fake, exec, _ := newTestController(t)

	if _, err := c.Start(target.After(0, 2)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	fake.Advance(5 * time.Minute)
	if exec.calls.Load() != 0 {
		t.Fatal("unconfirmed schedule fired")
	}

	if _, err := c.Confirm(); err != nil {
		t.Fatalf("Confirm() err=%v", err)
	}
	fake.Advance(0)
	if exec.calls.Load() != 1 {
		t.Fatalf("executor calls=%d, want 1", exec.calls.Load())
	}
}

func TestStaleAlarmIgnored(t *testing.T) {
	c, fake, exec, _ := newTestController(t)

	if _, err := c.Start(target.After(1, 0)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	c.mu.Lock()
	staleGen := c.gen
	c.mu.Unlock()

	if _, err := c.Cancel(); err != nil {
		t.Fatalf("Cancel() err=%v", err)
	}
	if _, err := c.Start(target.After(2, 0)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}

	// A callback from the first schedule arriving late must not fire the second.
	c.expire(staleGen)
	if exec.calls.Load() != 0 {
		t.Fatal("stale generation executed")
	}
	if got := c.Status().State; got != models.ScheduleStateArmed {
		t.Fatalf("state=%s, want armed", got)
	}

	fake.Advance(2 * time.Hour)
	if exec.calls.Load() != 1 {
		t.Fatalf("executor calls=%d, want 1", exec.calls.Load())
	}
}

func TestCancelRaceNeverExecutes(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, fake, exec, _ := newTestController(t)
		if _, err := c.Start(target.After(0, 10)); err != nil {
			t.Fatalf("Start() err=%v", err)
		}

		var (
			wg        sync.WaitGroup
			cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			fake.Advance(10 * time.Minute)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = c.Cancel()
		}()
		wg.Wait()

		if cancelErr == nil && exec.calls.Load() != 0 {
			t.Fatalf("iteration %d: cancel succeeded but executor ran", i)
		}
		if cancelErr != nil && !errors.Is(cancelErr, ErrInvalidState) {
			t.Fatalf("iteration %d: Cancel() err=%v", i, cancelErr)
		}
		if cancelErr != nil && exec.calls.Load() != 1 {
			t.Fatalf("iteration %d: cancel lost but executor calls=%d", i, exec.calls.Load())
		}
	}
}

func TestCloseWithdrawsPending(t *testing.T) {
	c, fake, exec, _ := newTestController(t)

	c.Close() // idle is a no-op

	if _, err := c.Start(target.After(1, 0)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	c.Close()

	fake.Advance(2 * time.Hour)
	if exec.calls.Load() != 0 {
		t.Fatal("executor ran after Close")
	}
	if got := c.Status().State; got != models.ScheduleStateIdle {
		t.Fatalf("state=%s, want idle", got)
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	c, fake, _, bus := newTestController(t)
	sub := bus.SubscribeAll()
	defer bus.UnsubscribeAll(sub)

	if _, err := c.Start(target.After(0, 3)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	if _, err := c.Confirm(); err != nil {
		t.Fatalf("Confirm() err=%v", err)
	}
	fake.Advance(3 * time.Minute)

	want := []events.EventType{
		events.EventAwaitingConfirmation,
		events.EventArmed,
		events.EventFiring,
		events.EventCompleted,
	}
	var id string
	for _, et := range want {
		select {
		case payload := <-sub:
			if payload["type"] != string(et) {
				t.Fatalf("event type=%v, want %s", payload["type"], et)
			}
			sid, _ := payload["schedule_id"].(string)
			if id == "" {
				id = sid
			} else if sid != id {
				t.Fatalf("schedule_id changed from %s to %s", id, sid)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", et)
		}
	}
}

func TestSystemClockEndToEnd(t *testing.T) {
	sys := clock.NewSystem()
	exec := &countingExecutor{}
	c := New(sys, sys, exec, nil, Options{ShortDelayThreshold: 2 * time.Minute}, zerolog.Nop())

	if _, err := c.Start(target.After(0, 1)); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	// Rewind the armed instant so the real timer fires promptly.
	c.mu.Lock()
	c.sched.FireAt = time.Now().Add(20 * time.Millisecond)
	c.mu.Unlock()

	if _, err := c.Confirm(); err != nil {
		t.Fatalf("Confirm() err=%v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status().State == models.ScheduleStateCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := c.Status().State; got != models.ScheduleStateCompleted {
		t.Fatalf("state=%s, want completed", got)
	}
	if exec.calls.Load() != 1 {
		t.Fatalf("executor calls=%d, want 1", exec.calls.Load())
	}
}
