package main

import (
	"testing"
)

// When ReadPump exits on its own, markClosed must signal done so
// WritePump tears down right away instead of idling until the next
// ping write fails.
func TestMarkClosedSignalsDone(t *testing.T) {
	c := NewClient(nil, nil, nil, "test")

	c.markClosed()

	select {
	case <-c.done:
	default:
		t.Fatal("done not signalled after markClosed")
	}

	// Repeated calls must not double-close
	c.markClosed()

	if err := c.Send([]byte("x")); err != errClientClosed {
		t.Errorf("Send after markClosed = %v, want errClientClosed", err)
	}
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	c := NewClient(nil, nil, nil, "test")

	for i := 0; i < sendBufSize+10; i++ {
		if err := c.Send([]byte("x")); err != nil {
			t.Fatalf("Send on full buffer = %v, want nil (drop)", err)
		}
	}
	if len(c.send) != sendBufSize {
		t.Errorf("queued = %d, want %d", len(c.send), sendBufSize)
	}
}
