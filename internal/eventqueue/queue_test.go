package eventqueue

import "testing"

func TestPushDrainPreservesArrivalOrder(t *testing.T) {
	q := New("0")
	q.Push(1, Event{ChannelID: 1, Kind: Pushed, Count: 1})
	q.Push(2, Event{ChannelID: 2, Kind: Pulled, Count: 3})

	if q.Len() != 2 {
		t.Fatalf("expected 2 queued entries, got %d", q.Len())
	}

	var seen []ID
	q.Drain(func(id ID, ev Event) { seen = append(seen, id) })

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("unexpected drain order: %v", seen)
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue to be empty after Drain, got %d", q.Len())
	}
}

func TestWaitChanWakesOnPush(t *testing.T) {
	q := New("0")
	select {
	case <-q.WaitChan():
		t.Fatal("expected no pending wake before any Push")
	default:
	}

	q.Push(1, Event{ChannelID: 1, Kind: Pushed, Count: 1})
	select {
	case <-q.WaitChan():
	default:
		t.Fatal("expected WaitChan to be ready after Push")
	}
}

func TestEventKindString(t *testing.T) {
	if Pushed.String() != "Pushed" {
		t.Fatalf("expected Pushed.String() == Pushed, got %q", Pushed.String())
	}
	if Pulled.String() != "Pulled" {
		t.Fatalf("expected Pulled.String() == Pulled, got %q", Pulled.String())
	}
}
