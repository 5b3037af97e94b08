package feedback

import (
	"errors"
	"testing"

	"github.com/careops/carepipe/internal/models"
)

type fakeResolver struct {
	sessionID string
}

func (f *fakeResolver) SessionID() string { return f.sessionID }

type fakeChannel struct {
	open   bool
	events []models.FeedbackEvent
	err    error
}

func (f *fakeChannel) IsOpen() bool { return f.open }

func (f *fakeChannel) WriteJSON(v interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, v.(models.FeedbackEvent))
	return nil
}

func TestRelaySendsTypedEvent(t *testing.T) {
	ch := &fakeChannel{open: true}
	relay := NewRelay(&fakeResolver{sessionID: "sess-1"})
	relay.SetChannel(ch)

	relay.Send("transcript", "thumbs_down", "mis-transcribed names", "agent-7")

	if len(ch.events) != 1 {
		t.Fatalf("expected one event, got %d", len(ch.events))
	}
	ev := ch.events[0]
	if ev.Type != "submit_feedback" {
		t.Errorf("expected submit_feedback type, got %q", ev.Type)
	}
	if ev.SessionID != "sess-1" {
		t.Errorf("expected session sess-1, got %q", ev.SessionID)
	}
	if ev.Panel != "transcript" || ev.FeedbackType != "thumbs_down" {
		t.Errorf("unexpected event fields: %+v", ev)
	}
	if ev.FeedbackText != "mis-transcribed names" || ev.UserID != "agent-7" {
		t.Errorf("unexpected event fields: %+v", ev)
	}
	if ev.Timestamp == 0 {
		t.Error("expected a timestamp")
	}
}

func TestRelayDropsWhenChannelClosed(t *testing.T) {
	ch := &fakeChannel{open: false}
	relay := NewRelay(&fakeResolver{sessionID: "sess-1"})
	relay.SetChannel(ch)

	relay.Send("extraction", "thumbs_up", "", "agent-7")

	if len(ch.events) != 0 {
		t.Errorf("expected event dropped on closed channel, got %d", len(ch.events))
	}
}

func TestRelayDropsWithoutChannel(t *testing.T) {
	relay := NewRelay(&fakeResolver{sessionID: "sess-1"})
	// Must not panic.
	relay.Send("extraction", "thumbs_up", "", "agent-7")
}

func TestRelayDropsWithoutSession(t *testing.T) {
	ch := &fakeChannel{open: true}
	relay := NewRelay(&fakeResolver{})
	relay.SetChannel(ch)

	relay.Send("transcript", "thumbs_down", "", "agent-7")

	if len(ch.events) != 0 {
		t.Errorf("expected event dropped with no session, got %d", len(ch.events))
	}
}

func TestRelayFollowsLiveSessionIdentity(t *testing.T) {
	resolver := &fakeResolver{}
	ch := &fakeChannel{open: true}
	relay := NewRelay(resolver)
	relay.SetChannel(ch)

	relay.Send("transcript", "thumbs_up", "", "agent-7")
	if len(ch.events) != 0 {
		t.Fatal("expected drop before session exists")
	}

	// The session is created after the relay; identity resolves at send time.
	resolver.sessionID = "sess-late"
	relay.Send("transcript", "thumbs_up", "", "agent-7")
	if len(ch.events) != 1 || ch.events[0].SessionID != "sess-late" {
		t.Errorf("expected event with late-bound session, got %+v", ch.events)
	}
}

func TestRelaySwallowsWriteErrors(t *testing.T) {
	ch := &fakeChannel{open: true, err: errors.New("broken pipe")}
	relay := NewRelay(&fakeResolver{sessionID: "sess-1"})
	relay.SetChannel(ch)

	// Must not panic or surface the error.
	relay.Send("transcript", "thumbs_down", "", "agent-7")
}
