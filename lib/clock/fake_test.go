// Copyright 2026 The GC Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNowMovesOnlyOnAdvance(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	if got, want := clock.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfter(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	clock.Advance(time.Second)
	select {
	case got := <-channel:
		if want := epoch.Add(3 * time.Second); !got.Equal(want) {
			t.Errorf("After delivered %v, want %v", got, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeClockAfterNonPositiveDeliversImmediately(t *testing.T) {
	clock := Fake(epoch)
	select {
	case <-clock.After(0):
	default:
		t.Fatal("After(0) did not deliver immediately")
	}
	if clock.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", clock.PendingCount())
	}
}

func TestFakeClockAfterFuncRunsInsideAdvance(t *testing.T) {
	clock := Fake(epoch)
	calls := 0
	clock.AfterFunc(time.Second, func() { calls++ })

	clock.Advance(999 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("callback ran early: calls = %d", calls)
	}
	clock.Advance(time.Millisecond)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	clock.Advance(time.Hour)
	if calls != 1 {
		t.Fatalf("one-shot callback repeated: calls = %d", calls)
	}
}

func TestFakeClockAfterFuncStop(t *testing.T) {
	clock := Fake(epoch)
	called := false
	timer := clock.AfterFunc(time.Second, func() { called = true })

	if !timer.Stop() {
		t.Fatal("first Stop returned false for a pending timer")
	}
	if timer.Stop() {
		t.Fatal("second Stop returned true")
	}
	clock.Advance(time.Minute)
	if called {
		t.Fatal("stopped timer fired")
	}
}

func TestFakeClockAfterFuncStopAfterFire(t *testing.T) {
	clock := Fake(epoch)
	timer := clock.AfterFunc(time.Second, func() {})
	clock.Advance(time.Second)
	if timer.Stop() {
		t.Fatal("Stop returned true after the timer fired")
	}
}

func TestNilTimerStop(t *testing.T) {
	var timer *Timer
	if timer.Stop() {
		t.Fatal("nil Timer Stop returned true")
	}
}

func TestFakeClockCallbackMaySchedule(t *testing.T) {
	clock := Fake(epoch)
	var order []string
	clock.AfterFunc(time.Second, func() {
		order = append(order, "first")
		// Scheduled relative to the already-advanced time.
		clock.AfterFunc(time.Second, func() { order = append(order, "second") })
	})

	clock.Advance(3 * time.Second)
	if len(order) != 1 {
		t.Fatalf("order = %v, want [first]", order)
	}
	clock.Advance(time.Second)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

func TestFakeClockFiresInDeadlineOrder(t *testing.T) {
	clock := Fake(epoch)
	var order []int
	clock.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	clock.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	clock.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	clock.Advance(5 * time.Second)
	for i, want := range []int{1, 2, 3} {
		if order[i] != want {
			t.Fatalf("order = %v, want [1 2 3]", order)
		}
	}
}

func TestFakeClockTicker(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for i := 1; i <= 3; i++ {
		clock.Advance(5 * time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d not delivered", i)
		}
	}
}

func TestFakeClockTickerDropsWhenFull(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	clock.Advance(10 * time.Second)

	received := 0
	for {
		select {
		case <-ticker.C:
			received++
			continue
		default:
		}
		break
	}
	if received != 1 {
		t.Fatalf("received %d ticks, want 1 (buffer of one)", received)
	}
}

func TestFakeClockTickerStop(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()
	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestFakeClockTickerPanicsOnNonPositive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) did not panic")
		}
	}()
	Fake(epoch).NewTicker(0)
}

func TestFakeClockWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-clock.After(time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)
	clock.Advance(time.Second)
	<-done
}

func TestClockImplementations(t *testing.T) {
	var _ Clock = Real()
	var _ Clock = Fake(epoch)
}
