package models

import (
	"testing"
	"time"
)

func TestCleanMetaDropsBadTimestamps(t *testing.T) {
	cleaned := CleanMeta(map[string]any{
		"timeStart":  "not-a-date",
		"timeEnd":    "2020-01-01T00:00:00",
		"instanceID": "abc",
	})

	if _, ok := cleaned["timeStart"]; ok {
		t.Fatalf("expected timeStart to be dropped, got %#v", cleaned["timeStart"])
	}
	end, ok := cleaned["timeEnd"].(time.Time)
	if !ok {
		t.Fatalf("expected timeEnd parsed as time, got %#v", cleaned["timeEnd"])
	}
	if !end.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timeEnd %v", end)
	}
	if cleaned["instanceID"] != "abc" {
		t.Fatalf("instanceID not kept: %#v", cleaned)
	}
}

func TestCleanMetaDropsEmptyTimestamps(t *testing.T) {
	cleaned := CleanMeta(map[string]any{"timeStart": "", "timeEnd": "  ", "userID": ""})
	if _, ok := cleaned["timeStart"]; ok {
		t.Fatalf("empty timeStart kept")
	}
	if _, ok := cleaned["timeEnd"]; ok {
		t.Fatalf("blank timeEnd kept")
	}
	if v, ok := cleaned["userID"]; !ok || v != "" {
		t.Fatalf("userID should pass through unchanged, got %#v", cleaned)
	}
}

func TestCleanMetaFlattensNestedMappings(t *testing.T) {
	in := map[string]any{
		"extra":    map[string]any{"a": "1", "b": "2"},
		"location": map[string]any{"lon": 4.5, "lat": "1.2"},
	}
	cleaned := CleanMeta(in)
	if cleaned["extra"] != "a:1, b:2" {
		t.Fatalf("unexpected extra %#v", cleaned["extra"])
	}
	if cleaned["location"] != "lat:1.2, lon:4.5" {
		t.Fatalf("unexpected location %#v", cleaned["location"])
	}
	if _, ok := in["extra"].(map[string]any); !ok {
		t.Fatalf("input block was modified")
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2020-01-01T00:00:00", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2020-01-01T10:30:00Z", time.Date(2020, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"2020-01-01T10:30:00.250+02:00", time.Date(2020, 1, 1, 8, 30, 0, 250_000_000, time.UTC)},
		{"2020-01-01T10:30:00.000-0500", time.Date(2020, 1, 1, 15, 30, 0, 0, time.UTC)},
		{"2020-01-01 10:30:00", time.Date(2020, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"2020-01-01", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTimestamp(tc.in)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}

	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for free text")
	}
}

func TestNewMetadataIgnoresUnknownKeys(t *testing.T) {
	md := NewMetadata(CleanMeta(map[string]any{
		"timeStart":    "2021-06-01T08:00:00Z",
		"instanceID":   "uuid:1",
		"userID":       "u-1",
		"deviceID":     "d-1",
		"deprecatedID": "uuid:0",
		"username":     "jo",
		"appVersion":   map[string]any{"#text": "2.1"},
	}))

	if md.TimeStart == nil || md.TimeStart.Year() != 2021 {
		t.Fatalf("unexpected timeStart %v", md.TimeStart)
	}
	if md.TimeEnd != nil {
		t.Fatalf("expected absent timeEnd, got %v", md.TimeEnd)
	}
	want := Metadata{InstanceID: "uuid:1", UserID: "u-1", DeviceID: "d-1", DeprecatedID: "uuid:0", Username: "jo"}
	got := *md
	got.TimeStart = nil
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
