package events_test

import (
	"testing"

	"github.com/adamwoolhether/utxochain/foundation/events"
)

func TestSendReachesEveryReceiver(t *testing.T) {
	evts := events.New()
	defer evts.Shutdown()

	a := evts.Acquire("a")
	b := evts.Acquire("b")

	evts.Send("block 1")

	for i, ch := range []chan string{a, b} {
		if msg := <-ch; msg != "block 1" {
			t.Errorf("[case:%d] expected %q, got %q", i, "block 1", msg)
		}
	}

	if err := evts.Release("a"); err != nil {
		t.Fatal(err)
	}
	if _, open := <-a; open {
		t.Fatal("expected a released channel to be closed")
	}
	if err := evts.Release("a"); err == nil {
		t.Fatal("expected an error releasing twice")
	}
}

func TestSendDoesNotBlock(t *testing.T) {
	evts := events.New()
	defer evts.Shutdown()

	ch := evts.Acquire("slow")

	// Nobody reads. Overflowing messages are dropped.
	for i := 0; i < 1000; i++ {
		evts.Send("msg")
	}

	if n := len(ch); n != cap(ch) {
		t.Fatalf("expected a full buffer of %d, got %d", cap(ch), n)
	}
}
