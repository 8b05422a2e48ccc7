package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/artlane/realtime/internal/protocol"
)

func makeMsg(i int) protocol.Message {
	return protocol.Message{
		Type:      protocol.TypeStatusUpdate,
		SenderID:  "user-1",
		Payload:   []byte(fmt.Sprintf(`{"seq": %d}`, i)),
		Timestamp: int64(i),
	}
}

func TestEnqueueFlushOrder(t *testing.T) {
	q := New(10)

	for i := 0; i < 5; i++ {
		if evicted := q.Enqueue(makeMsg(i)); evicted {
			t.Errorf("Enqueue(%d) evicted unexpectedly", i)
		}
	}
	if q.Len() != 5 {
		t.Fatalf("Len = %d, want 5", q.Len())
	}

	var flushed []protocol.Message
	sent, err := q.Flush(func(m protocol.Message) error {
		flushed = append(flushed, m)
		return nil
	})
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if sent != 5 {
		t.Errorf("sent = %d, want 5", sent)
	}
	for i, m := range flushed {
		if m.Timestamp != int64(i) {
			t.Errorf("flushed[%d].Timestamp = %d, want %d (FIFO order)", i, m.Timestamp, i)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len after flush = %d, want 0", q.Len())
	}
}

func TestEnqueueEvictsOldest(t *testing.T) {
	q := New(100)

	for i := 1; i <= 100; i++ {
		if evicted := q.Enqueue(makeMsg(i)); evicted {
			t.Fatalf("Enqueue(%d) evicted before capacity reached", i)
		}
	}

	// 101st enqueue evicts message #1, retaining the most recent 100.
	if evicted := q.Enqueue(makeMsg(101)); !evicted {
		t.Error("Enqueue(101) should report eviction")
	}
	if q.Len() != 100 {
		t.Errorf("Len = %d, want 100", q.Len())
	}

	var first protocol.Message
	got := false
	q.Flush(func(m protocol.Message) error {
		if !got {
			first = m
			got = true
		}
		return nil
	})
	if first.Timestamp != 2 {
		t.Errorf("oldest retained message = #%d, want #2 (message #1 evicted)", first.Timestamp)
	}
}

func TestFlushPartialFailure(t *testing.T) {
	q := New(10)
	for i := 0; i < 5; i++ {
		q.Enqueue(makeMsg(i))
	}

	writeErr := errors.New("write failed")
	calls := 0
	sent, err := q.Flush(func(m protocol.Message) error {
		calls++
		if calls > 2 {
			return writeErr
		}
		return nil
	})
	if !errors.Is(err, writeErr) {
		t.Fatalf("Flush error = %v, want write failure", err)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}
	if q.Len() != 3 {
		t.Errorf("Len after partial flush = %d, want 3", q.Len())
	}

	// The failed message and everything behind it stay in original order,
	// with nothing duplicated.
	var rest []int64
	q.Flush(func(m protocol.Message) error {
		rest = append(rest, m.Timestamp)
		return nil
	})
	want := []int64{2, 3, 4}
	if len(rest) != len(want) {
		t.Fatalf("remaining = %v, want %v", rest, want)
	}
	for i := range want {
		if rest[i] != want[i] {
			t.Errorf("remaining[%d] = %d, want %d", i, rest[i], want[i])
		}
	}
}

func TestClear(t *testing.T) {
	q := New(10)
	for i := 0; i < 7; i++ {
		q.Enqueue(makeMsg(i))
	}

	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", q.Len())
	}

	sent, err := q.Flush(func(protocol.Message) error { return nil })
	if err != nil || sent != 0 {
		t.Errorf("Flush after Clear = (%d, %v), want (0, nil)", sent, err)
	}
}

func TestWrapAround(t *testing.T) {
	q := New(3)

	// Fill, drain partially, refill past the ring boundary.
	q.Enqueue(makeMsg(0))
	q.Enqueue(makeMsg(1))
	q.Enqueue(makeMsg(2))

	drained := 0
	q.Flush(func(m protocol.Message) error {
		if drained == 2 {
			return errors.New("stop")
		}
		drained++
		return nil
	})

	q.Enqueue(makeMsg(3))
	q.Enqueue(makeMsg(4)) // queue full again
	q.Enqueue(makeMsg(5)) // evicts #2 across the ring boundary

	var order []int64
	q.Flush(func(m protocol.Message) error {
		order = append(order, m.Timestamp)
		return nil
	})
	want := []int64{3, 4, 5}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %d, want %d", i, order[i], want[i])
		}
	}
}

func TestStats(t *testing.T) {
	q := New(2)
	q.Enqueue(makeMsg(0))
	q.Enqueue(makeMsg(1))
	q.Enqueue(makeMsg(2)) // evicts #0
	q.Flush(func(protocol.Message) error { return nil })

	s := q.Stats()
	if s.TotalEnqueued != 3 {
		t.Errorf("TotalEnqueued = %d, want 3", s.TotalEnqueued)
	}
	if s.TotalEvicted != 1 {
		t.Errorf("TotalEvicted = %d, want 1", s.TotalEvicted)
	}
	if s.TotalFlushed != 2 {
		t.Errorf("TotalFlushed = %d, want 2", s.TotalFlushed)
	}
	if s.Count != 0 || s.Capacity != 2 {
		t.Errorf("Count/Capacity = %d/%d, want 0/2", s.Count, s.Capacity)
	}
}

func TestNew_InvalidCapacity(t *testing.T) {
	q := New(0)
	if q.Cap() != DefaultCapacity {
		t.Errorf("Cap = %d, want %d", q.Cap(), DefaultCapacity)
	}
}
