package agent

import (
	"testing"
	"time"
)

func TestObserverDataReady(t *testing.T) {
	reg := NewObserverRegistry()
	o := reg.Register(map[string]bool{"X": true}, 5)
	defer o.Close()

	done := make(chan Event, 1)
	go func() {
		done <- o.Wait(time.Second, 100*time.Millisecond)
	}()

	time.Sleep(10 * time.Millisecond)
	reg.Notify("X", 6)

	select {
	case ev := <-done:
		if ev != EventDataReady {
			t.Errorf("expected DataReady, got %v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("observer did not wake up")
	}
}

func TestObserverIgnoresUnmatchedFilter(t *testing.T) {
	reg := NewObserverRegistry()
	o := reg.Register(map[string]bool{"X": true}, 5)
	defer o.Close()

	reg.Notify("Y", 6)

	ev := o.Wait(50*time.Millisecond, 10*time.Millisecond)
	if ev == EventDataReady {
		t.Errorf("observer should not wake for a DataItem outside its filter")
	}
}

// TestObserverHeartbeatThenTimeout checks a streaming caller tracking
// cumulative timeout itself, decrementing by the heartbeat slice between
// Wait calls, until remaining is exhausted.
func TestObserverHeartbeatThenTimeout(t *testing.T) {
	reg := NewObserverRegistry()
	o := reg.Register(nil, 100)
	defer o.Close()

	const heartbeat = 20 * time.Millisecond
	remaining := 100 * time.Millisecond // exactly 5 heartbeat slices

	heartbeats := 0
	var final Event
	for i := 0; i < 10; i++ {
		ev := o.Wait(remaining, heartbeat)
		remaining -= heartbeat
		if ev == EventHeartbeat {
			heartbeats++
			continue
		}
		final = ev
		break
	}
	if heartbeats != 5 {
		t.Errorf("expected 5 heartbeats, got %d", heartbeats)
	}
	if final != EventTimeout {
		t.Errorf("expected final event Timeout, got %v", final)
	}
}

func TestObserverCursorIgnoresStaleSequence(t *testing.T) {
	reg := NewObserverRegistry()
	o := reg.Register(nil, 10)
	defer o.Close()

	reg.Notify("X", 5) // seq <= cursor: must not wake

	ev := o.Wait(50*time.Millisecond, 10*time.Millisecond)
	if ev == EventDataReady {
		t.Errorf("observer should not wake for a sequence at or below its cursor")
	}
}
