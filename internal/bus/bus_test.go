package bus

import (
	"testing"
	"time"

	"github.com/totalaud/agentcore/pkg/models"
)

func event(t models.EventType) models.LiveEvent {
	return models.LiveEvent{
		Type:       t,
		Timestamp:  time.Now().UTC(),
		CampaignID: "camp-1",
	}
}

func TestEmitDeliversToTypedListeners(t *testing.T) {
	b := New()

	var tasks, all int
	b.Subscribe(func(models.LiveEvent) { tasks++ }, models.EventTaskCompleted)
	b.Subscribe(func(models.LiveEvent) { all++ })

	b.Emit(event(models.EventTaskCompleted))
	b.Emit(event(models.EventNoteCreated))

	if tasks != 1 {
		t.Errorf("typed listener: expected 1 delivery, got %d", tasks)
	}
	if all != 2 {
		t.Errorf("catch-all listener: expected 2 deliveries, got %d", all)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	var n int
	unsub := b.Subscribe(func(models.LiveEvent) { n++ }, models.EventTaskCompleted)

	b.Emit(event(models.EventTaskCompleted))
	unsub()
	unsub() // second call is a no-op
	b.Emit(event(models.EventTaskCompleted))

	if n != 1 {
		t.Errorf("expected 1 delivery before unsubscribe, got %d", n)
	}
}

func TestListenerPanicIsIsolated(t *testing.T) {
	b := New()

	var survived int
	b.Subscribe(func(models.LiveEvent) { panic("boom") }, models.EventTaskCompleted)
	b.Subscribe(func(models.LiveEvent) { survived++ }, models.EventTaskCompleted)

	// Must not panic the emitter and must still reach the second listener.
	b.Emit(event(models.EventTaskCompleted))

	if survived != 1 {
		t.Errorf("expected surviving listener to run once, got %d", survived)
	}
}

func TestEmissionOrderPerListener(t *testing.T) {
	b := New()

	var seen []string
	b.Subscribe(func(e models.LiveEvent) { seen = append(seen, e.EntityID) }, models.EventNoteCreated)

	for _, id := range []string{"a", "b", "c"} {
		e := event(models.EventNoteCreated)
		e.EntityID = id
		b.Emit(e)
	}

	if len(seen) != 3 || seen[0] != "a" || seen[1] != "b" || seen[2] != "c" {
		t.Errorf("expected emission order a,b,c, got %v", seen)
	}
}

func TestHistoryRingEvictsOldest(t *testing.T) {
	b := NewWithHistory(3)

	for _, id := range []string{"1", "2", "3", "4"} {
		e := event(models.EventLoopExecuted)
		e.EntityID = id
		b.Emit(e)
	}

	got := b.History("", 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(got))
	}
	// Newest first; "1" was evicted.
	if got[0].EntityID != "4" || got[2].EntityID != "2" {
		t.Errorf("expected [4 3 2], got [%s %s %s]", got[0].EntityID, got[1].EntityID, got[2].EntityID)
	}
}

func TestHistoryFiltersByTypeAndLimit(t *testing.T) {
	b := New()

	b.Emit(event(models.EventTaskCompleted))
	b.Emit(event(models.EventNoteCreated))
	b.Emit(event(models.EventTaskCompleted))

	tasks := b.History(models.EventTaskCompleted, 0)
	if len(tasks) != 2 {
		t.Errorf("expected 2 task events, got %d", len(tasks))
	}

	limited := b.History("", 1)
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
	if limited[0].Type != models.EventTaskCompleted {
		t.Errorf("expected newest event first, got %s", limited[0].Type)
	}
}
