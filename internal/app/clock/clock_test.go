package clock

import (
	"testing"
	"time"
)

func TestFakeFiresDueTimersInOrder(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Unix(0, 0))
	var got []string
	c.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	c.AfterFunc(time.Second, func() { got = append(got, "a") })
	stopped := c.AfterFunc(time.Second, func() { got = append(got, "stopped") })
	if !stopped.Stop() {
		t.Fatalf("expected stop to report pending timer")
	}

	c.Advance(500 * time.Millisecond)
	if len(got) != 0 {
		t.Fatalf("nothing should fire yet, got %v", got)
	}
	c.Advance(2 * time.Second)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected fire order %v", got)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending timers")
	}
	if stopped.Stop() {
		t.Fatalf("second stop must report false")
	}
}
