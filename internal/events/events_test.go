package events_test

import (
	"testing"

	"gtasksync/internal/events"
)

func TestDispatcher_FiltersByKind(t *testing.T) {
	d := events.NewDispatcher()
	docs := d.Subscribe(events.DocumentModified, events.DocumentDeleted)
	defer docs.Close()
	all := d.Subscribe()
	defer all.Close()

	d.Publish(events.Event{Kind: events.InteractionOccurred, Path: "a.md"})
	d.Publish(events.Event{Kind: events.DocumentModified, Path: "b.md"})

	select {
	case e := <-docs.Events:
		if e.Kind != events.DocumentModified || e.Path != "b.md" {
			t.Errorf("unexpected event: %+v", e)
		}
	default:
		t.Fatal("expected a document event")
	}
	select {
	case e := <-docs.Events:
		t.Errorf("unexpected extra event: %+v", e)
	default:
	}

	if got := len(all.Events); got != 2 {
		t.Errorf("catch-all subscriber got %d events, want 2", got)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := events.NewDispatcher(events.WithSubscriberCapacity(1))
	sub := d.Subscribe()
	defer sub.Close()

	if !d.Publish(events.Event{Kind: events.ManualTrigger}) {
		t.Fatal("first event should be delivered")
	}
	if d.Publish(events.Event{Kind: events.ManualTrigger}) {
		t.Error("second event should be dropped while the buffer is full")
	}
	<-sub.Events
	if !d.Publish(events.Event{Kind: events.ManualTrigger}) {
		t.Error("delivery should resume once drained")
	}
}

func TestSubscription_CloseClosesChannel(t *testing.T) {
	d := events.NewDispatcher()
	sub := d.Subscribe()
	sub.Close()
	sub.Close()

	if _, ok := <-sub.Events; ok {
		t.Error("channel should be closed")
	}
	if !d.Publish(events.Event{Kind: events.ManualTrigger}) {
		t.Error("publishing with no subscribers should succeed")
	}
}
