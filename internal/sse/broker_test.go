package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/sowilo/internal/editor"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "design.opened", Data: map[string]string{"designId": "poster"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: design.opened") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"designId":"poster"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestPublishEditorEvent_DocumentThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	changed := func(id string) editor.Event {
		return editor.Event{Type: editor.EventDocumentChanged, DesignID: id}
	}
	// Second change of the same design inside the window is dropped.
	b.PublishEditorEvent(changed("a"))
	b.PublishEditorEvent(changed("a"))
	// Other designs have their own window.
	b.PublishEditorEvent(changed("b"))

	msgs := drain(ch)
	if len(msgs) != 2 {
		t.Fatalf("document events = %d, want 2: %q", len(msgs), msgs)
	}
	if !strings.Contains(msgs[1], `"designId":"b"`) {
		t.Errorf("second event = %q, want design b", msgs[1])
	}
}

func TestPublishEditorEvent_NotificationsNotThrottled(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	n := b.Notifier()
	n.Publish(editor.Event{Type: editor.EventNotification, DesignID: "a", Level: editor.LevelWarning, Message: "one"})
	n.Publish(editor.Event{Type: editor.EventNotification, DesignID: "a", Level: editor.LevelError, Message: "two"})
	n.Publish(editor.Event{Type: editor.EventSyncStatus, DesignID: "a", Sync: &editor.Sync{Indicator: editor.IndicatorSaved}})

	msgs := drain(ch)
	if len(msgs) != 3 {
		t.Fatalf("events = %d, want 3: %q", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "event: notification") || !strings.Contains(msgs[0], `"level":"warning"`) {
		t.Errorf("unexpected notification %q", msgs[0])
	}
	if !strings.Contains(msgs[2], "event: sync.status") || !strings.Contains(msgs[2], `"indicator":"saved"`) {
		t.Errorf("unexpected sync event %q", msgs[2])
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishEditorEvent(editor.Event{Type: editor.EventDocumentChanged, DesignID: "poster"})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: document.changed") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "design.opened", Data: map[string]string{"designId": "x"}})
	b.PublishEditorEvent(editor.Event{Type: editor.EventDocumentChanged, DesignID: "x"})
}
