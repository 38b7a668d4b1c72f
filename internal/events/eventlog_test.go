package events

import (
	"errors"
	"sync"
	"testing"
)

type recordingPersister struct {
	mu     sync.Mutex
	events []GameEvent
	err    error
}

func (p *recordingPersister) Append(e GameEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func TestAppendAssignsSequence(t *testing.T) {
	el := NewEventLog(0, nil)

	el.Append(GameEvent{Type: EventTypeBalanceChanged})
	el.Append(GameEvent{Type: EventTypeTapCollected})

	all := el.Replay()
	if len(all) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(all))
	}
	if all[0].Seq != 1 || all[1].Seq != 2 {
		t.Errorf("Expected sequence 1,2 got %d,%d", all[0].Seq, all[1].Seq)
	}
	if all[0].ID == "" || all[0].Timestamp.IsZero() {
		t.Errorf("Expected ID and Timestamp to be filled in, got %+v", all[0])
	}
	if el.LastSeq() != 2 {
		t.Errorf("Expected LastSeq 2, got %d", el.LastSeq())
	}
}

func TestRetentionDropsOldest(t *testing.T) {
	el := NewEventLog(3, nil)
	for i := 0; i < 5; i++ {
		el.Append(GameEvent{Type: EventTypeBalanceChanged})
	}

	all := el.Replay()
	if len(all) != 3 {
		t.Fatalf("Expected 3 retained events, got %d", len(all))
	}
	if all[0].Seq != 3 || all[2].Seq != 5 {
		t.Errorf("Expected retained seq 3..5, got %d..%d", all[0].Seq, all[2].Seq)
	}

	newer := el.Since(4)
	if len(newer) != 1 || newer[0].Seq != 5 {
		t.Errorf("Expected only seq 5 after 4, got %+v", newer)
	}
}

func TestRingWrapsManyTimes(t *testing.T) {
	el := NewEventLog(4, nil)
	for i := 0; i < 11; i++ {
		typ := EventTypeBalanceChanged
		if i%2 == 0 {
			typ = EventTypeTapCollected
		}
		el.Append(GameEvent{Type: typ})
	}

	all := el.Replay()
	if len(all) != 4 {
		t.Fatalf("Expected 4 retained events, got %d", len(all))
	}
	for i, e := range all {
		if want := uint64(8 + i); e.Seq != want {
			t.Errorf("Expected seq %d at %d, got %d", want, i, e.Seq)
		}
	}

	cases := []struct {
		since uint64
		first uint64
		n     int
	}{
		{0, 8, 4},
		{7, 8, 4},
		{8, 9, 3},
		{10, 11, 1},
		{11, 0, 0},
		{99, 0, 0},
	}
	for _, tc := range cases {
		got := el.Since(tc.since)
		if len(got) != tc.n {
			t.Errorf("Since(%d): expected %d events, got %d", tc.since, tc.n, len(got))
			continue
		}
		if tc.n > 0 && got[0].Seq != tc.first {
			t.Errorf("Since(%d): expected first seq %d, got %d", tc.since, tc.first, got[0].Seq)
		}
	}

	// Taps hold odd sequence numbers.
	taps := el.GetByType(EventTypeTapCollected)
	if len(taps) != 2 || taps[0].Seq != 9 || taps[1].Seq != 11 {
		t.Errorf("Expected retained taps at seq 9 and 11, got %+v", taps)
	}
}

func TestGetByType(t *testing.T) {
	el := NewEventLog(0, nil)
	el.Append(GameEvent{Type: EventTypeTapCollected})
	el.Append(GameEvent{Type: EventTypeBalanceChanged})
	el.Append(GameEvent{Type: EventTypeTapCollected})

	if got := len(el.GetByType(EventTypeTapCollected)); got != 2 {
		t.Errorf("Expected 2 tap events, got %d", got)
	}
}

func TestPersisterReceivesEventsInOrder(t *testing.T) {
	p := &recordingPersister{}
	el := NewEventLog(16, p)
	for i := 0; i < 10; i++ {
		el.Append(GameEvent{Type: EventTypeBalanceChanged})
	}
	el.Close()

	if len(p.events) != 10 {
		t.Fatalf("Expected 10 persisted events, got %d", len(p.events))
	}
	for i, e := range p.events {
		if e.Seq != uint64(i+1) {
			t.Errorf("Expected persisted seq %d at %d, got %d", i+1, i, e.Seq)
		}
	}
}

func TestMultiPersisterJoinsErrors(t *testing.T) {
	ok := &recordingPersister{}
	bad := &recordingPersister{err: errors.New("disk full")}
	m := MultiPersister{ok, bad}

	err := m.Append(GameEvent{Type: EventTypeGateClosed})
	if err == nil {
		t.Fatalf("Expected error from failing persister")
	}
	if len(ok.events) != 1 || len(bad.events) != 1 {
		t.Errorf("Expected both persisters to be called, got %d and %d", len(ok.events), len(bad.events))
	}
}
