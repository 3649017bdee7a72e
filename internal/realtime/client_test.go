package realtime

import (
	"context"
	"encoding/json"
	"testing"
)

func typingEvent(t *testing.T, eventType string, receiverID int64) Event {
	t.Helper()
	payload, err := json.Marshal(TypingPayload{ReceiverID: receiverID})
	if err != nil {
		t.Fatalf("marshal typing payload: %v", err)
	}
	return Event{Type: eventType, Payload: payload}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestTypingRelayedOnlyToMatchedCounterpart(t *testing.T) {
	matches := &counterpartStub{counterparts: map[int64][]int64{1: {2}, 2: {1}}}
	hub := newTestHub(&presenceSpy{}, matches)

	sender := connect(hub, 1)
	matched := connect(hub, 2)
	stranger := connect(hub, 3)
	drain(sender)

	sender.handleEvent(context.Background(), typingEvent(t, EventTyping, 2))

	got := receive(t, matched)
	if got.Type != EventUserTyping {
		t.Fatalf("unexpected event type: %s", got.Type)
	}
	var payload TypingPayload
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SenderID != 1 || !payload.IsTyping {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	sender.handleEvent(context.Background(), typingEvent(t, EventStopTyping, 2))
	got = receive(t, matched)
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.IsTyping {
		t.Fatalf("expected isTyping=false after stopTyping, got %+v", payload)
	}

	sender.handleEvent(context.Background(), typingEvent(t, EventTyping, 3))
	select {
	case event := <-stranger.send:
		t.Fatalf("unmatched user must not receive typing events, got %s", event.Type)
	default:
	}
	select {
	case event := <-sender.send:
		t.Fatalf("sender must not receive an error for a dropped relay, got %s", event.Type)
	default:
	}
}
