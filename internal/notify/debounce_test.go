package notify

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedule_FiresAfterDelay(t *testing.T) {
	d := NewDebouncer()
	var fired atomic.Int32

	d.Schedule("alpha", 20*time.Millisecond, func() { fired.Add(1) })

	if fired.Load() != 0 {
		t.Error("fired before the window elapsed")
	}

	deadline := time.After(time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("notification never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if d.Pending("alpha") {
		t.Error("timer should be cleared after firing")
	}
}

func TestSchedule_ReplacesPending(t *testing.T) {
	d := NewDebouncer()
	var first, second atomic.Int32

	d.Schedule("alpha", 30*time.Millisecond, func() { first.Add(1) })
	d.Schedule("alpha", 30*time.Millisecond, func() { second.Add(1) })

	time.Sleep(150 * time.Millisecond)

	if first.Load() != 0 {
		t.Error("replaced notification still fired")
	}
	if second.Load() != 1 {
		t.Errorf("replacement fired %d times, want 1", second.Load())
	}
}

func TestCancel(t *testing.T) {
	d := NewDebouncer()
	var fired atomic.Int32

	d.Schedule("alpha", 30*time.Millisecond, func() { fired.Add(1) })

	if !d.Cancel("alpha") {
		t.Error("Cancel should report a pending notification")
	}
	if d.Cancel("alpha") {
		t.Error("second Cancel should report nothing pending")
	}

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("cancelled notification fired anyway")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	d := NewDebouncer()
	var alpha, beta atomic.Int32

	d.Schedule("alpha", 30*time.Millisecond, func() { alpha.Add(1) })
	d.Schedule("beta", 30*time.Millisecond, func() { beta.Add(1) })
	d.Cancel("alpha")

	time.Sleep(150 * time.Millisecond)

	if alpha.Load() != 0 {
		t.Error("cancelling alpha should not affect its own timer only")
	}
	if beta.Load() != 1 {
		t.Errorf("beta fired %d times, want 1", beta.Load())
	}
}

func TestStop_CancelsEverything(t *testing.T) {
	d := NewDebouncer()
	var fired atomic.Int32

	d.Schedule("alpha", 30*time.Millisecond, func() { fired.Add(1) })
	d.Schedule("beta", 30*time.Millisecond, func() { fired.Add(1) })
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("%d notifications fired after Stop", fired.Load())
	}
	if d.Pending("alpha") || d.Pending("beta") {
		t.Error("timers should be cleared")
	}
}
