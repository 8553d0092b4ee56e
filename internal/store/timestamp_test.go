package store

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampUnmarshalVariants(t *testing.T) {
	want := Timestamp(1700000000000)

	tests := []struct {
		name string
		in   string
	}{
		{"epoch millis number", `1700000000000`},
		{"epoch seconds fractional", `1700000000.0`},
		{"rfc3339 string", `"2023-11-14T22:13:20Z"`},
		{"tagged epoch_ms object", `{"epoch_ms":1700000000000}`},
		{"tagged epoch_time object", `{"epoch_time":1700000000.0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.in), &ts); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.in, err)
			}
			if ts != want {
				t.Fatalf("got %d, want %d", ts, want)
			}
		})
	}
}

func TestTimestampUnmarshalInvalid(t *testing.T) {
	for _, in := range []string{`"not a time"`, `true`, `{"unknown":1}`} {
		var ts Timestamp
		if err := json.Unmarshal([]byte(in), &ts); err == nil {
			t.Errorf("expected error for %s", in)
		}
	}
}

func TestTimestampMarshalRoundTrip(t *testing.T) {
	ts := Timestamp(1700000000123)
	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "1700000000123" {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var back Timestamp
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != ts {
		t.Fatalf("round trip mismatch: %d != %d", back, ts)
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("1700000000000")
	if err != nil {
		t.Fatalf("parse millis: %v", err)
	}
	if ts != 1700000000000 {
		t.Fatalf("got %d", ts)
	}

	ts, err = ParseTimestamp("2023-11-14T22:13:20Z")
	if err != nil {
		t.Fatalf("parse rfc3339: %v", err)
	}
	if ts != 1700000000000 {
		t.Fatalf("got %d", ts)
	}

	if _, err := ParseTimestamp("garbage"); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestTimestampOrdering(t *testing.T) {
	earlier := FromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	later := FromTime(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	if !later.After(earlier) {
		t.Fatal("later should be after earlier")
	}
	if earlier.After(later) {
		t.Fatal("earlier should not be after later")
	}
	if !earlier.AtOrAfter(earlier) {
		t.Fatal("a timestamp is at or after itself")
	}
}

func TestMessageHasContent(t *testing.T) {
	empty := Message{}
	if empty.HasContent() {
		t.Fatal("empty message should have no content")
	}

	withText := Message{Text: "hi"}
	if !withText.HasContent() {
		t.Fatal("text message should have content")
	}

	withAttachment := Message{Attachment: &Attachment{URL: "https://files/x.png"}}
	if !withAttachment.HasContent() {
		t.Fatal("attachment message should have content")
	}

	urlless := Message{Attachment: &Attachment{FileName: "x.png"}}
	if urlless.HasContent() {
		t.Fatal("attachment without URL should not count as content")
	}
}
