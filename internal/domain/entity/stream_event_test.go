package entity

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewLogEntryTimestamp(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 45, 123_000_000, time.FixedZone("X", 3600))
	e := NewLogEntry(StepSearching, "Performing web search for grounding...", at)
	if e.Timestamp != "2024-05-01T11:30:45.123Z" {
		t.Fatalf("timestamp = %q", e.Timestamp)
	}
}

func TestStreamEventPayloadShapes(t *testing.T) {
	cases := []struct {
		ev   StreamEvent
		kind EventKind
		json string
	}{
		{TokenEvent(TargetX, "he"), EventToken, `{"which":"x","token":"he"}`},
		{TargetDoneEvent(TargetLinkedIn, "body"), EventLinkedInDone, `{"text":"body"}`},
		{TargetDoneEvent(TargetX, "t"), EventXDone, `{"text":"t"}`},
		{TextEvent(TargetX, "t"), EventX, `{"text":"t"}`},
		{DoneEvent("a", "b"), EventDone, `{"linkedin":"a","x":"b"}`},
		{ErrorEvent("boom"), EventError, `{"message":"boom"}`},
	}
	for _, tc := range cases {
		if tc.ev.Kind != tc.kind {
			t.Errorf("kind = %s, want %s", tc.ev.Kind, tc.kind)
		}
		b, err := json.Marshal(tc.ev.Data)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tc.json {
			t.Errorf("%s payload = %s, want %s", tc.kind, b, tc.json)
		}
	}
}

func TestDecodeStreamEvent(t *testing.T) {
	ev, err := DecodeStreamEvent("token", []byte(`{"which":"linkedin","token":"Hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := ev.Data.(TokenPayload)
	if !ok || p.Which != TargetLinkedIn || p.Token != "Hi" {
		t.Fatalf("decoded %+v", ev)
	}

	if _, err := DecodeStreamEvent("mystery", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown event")
	}
	if _, err := DecodeStreamEvent("done", []byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}
