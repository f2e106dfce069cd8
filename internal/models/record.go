package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lllllllleong/xformflow/internal/docstore"
)

var recordTimeKeys = []string{"received_on", "deprecated_date", "archived_date"}

// decodeRecord fills target from rec and returns the keys target does not
// model. Stored timestamps are normalized first so legacy formats and empty
// strings do not fail the whole decode.
func decodeRecord(rec docstore.Record, known map[string]bool, target any) (map[string]any, error) {
	normalized := make(map[string]any, len(rec))
	for k, v := range rec {
		normalized[k] = v
	}
	for _, key := range recordTimeKeys {
		raw, ok := normalized[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case time.Time:
			normalized[key] = v.Format(time.RFC3339Nano)
		case string:
			parsed, err := ParseTimestamp(v)
			if err != nil {
				delete(normalized, key)
				continue
			}
			normalized[key] = parsed.Format(time.RFC3339Nano)
		default:
			delete(normalized, key)
		}
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", rec.ID(), err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", rec.ID(), err)
	}

	var extra map[string]any
	for k, v := range rec {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[k] = v
	}
	return extra, nil
}

// encodeRecord renders v into a record and merges extra underneath the typed
// fields; a typed field always wins over an extension key of the same name.
func encodeRecord(v any, extra map[string]any) (docstore.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec docstore.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	for k, val := range extra {
		if _, taken := rec[k]; taken {
			continue
		}
		rec[k] = val
	}
	return rec, nil
}
