package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Metadata is the typed view of a form's meta block, structured like:
//
//	<meta>
//	    <timeStart />
//	    <timeEnd />
//	    <instanceID />
//	    <userID />
//	    <deviceID />
//	    <deprecatedID />
//	    <username />
//	</meta>
//
// following the OpenRosa metadata schema. username is not part of that
// schema but is carried for convenience. Keys outside this set are dropped.
type Metadata struct {
	TimeStart    *time.Time `json:"timeStart,omitempty" yaml:"timeStart,omitempty"`
	TimeEnd      *time.Time `json:"timeEnd,omitempty" yaml:"timeEnd,omitempty"`
	InstanceID   string     `json:"instanceID,omitempty" yaml:"instanceID,omitempty"`
	UserID       string     `json:"userID,omitempty" yaml:"userID,omitempty"`
	DeviceID     string     `json:"deviceID,omitempty" yaml:"deviceID,omitempty"`
	DeprecatedID string     `json:"deprecatedID,omitempty" yaml:"deprecatedID,omitempty"`
	Username     string     `json:"username,omitempty" yaml:"username,omitempty"`
}

var metaTimeKeys = []string{"timeStart", "timeEnd"}

// CleanMeta sanitizes a raw meta block: timeStart/timeEnd are parsed into
// time.Time or dropped when empty or unparseable, and nested mappings are
// flattened into "key:value" pairs joined by ", " in key order. Everything
// else passes through. The input is not modified.
func CleanMeta(block map[string]any) map[string]any {
	out := make(map[string]any, len(block))
	for k, v := range block {
		out[k] = v
	}
	for _, key := range metaTimeKeys {
		raw, ok := out[key]
		if !ok {
			continue
		}
		if t, ok := raw.(time.Time); ok {
			out[key] = t
			continue
		}
		s, _ := raw.(string)
		if strings.TrimSpace(s) == "" {
			delete(out, key)
			continue
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			delete(out, key)
			continue
		}
		out[key] = parsed
	}
	for key, raw := range out {
		if isMetaTimeKey(key) {
			continue
		}
		if nested, ok := raw.(map[string]any); ok {
			out[key] = flattenPairs(nested)
		}
	}
	return out
}

func isMetaTimeKey(key string) bool {
	for _, k := range metaTimeKeys {
		if k == key {
			return true
		}
	}
	return false
}

// flattenPairs renders a nested meta value as "k:v, k:v" in sorted key order,
// since map iteration order is random.
func flattenPairs(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s:%s", k, stringValue(m[k])))
	}
	return strings.Join(pairs, ", ")
}

// NewMetadata builds the typed record from an already cleaned meta block.
func NewMetadata(cleaned map[string]any) *Metadata {
	md := &Metadata{
		InstanceID:   metaString(cleaned, "instanceID"),
		UserID:       metaString(cleaned, "userID"),
		DeviceID:     metaString(cleaned, "deviceID"),
		DeprecatedID: metaString(cleaned, "deprecatedID"),
		Username:     metaString(cleaned, "username"),
	}
	if t, ok := cleaned["timeStart"].(time.Time); ok {
		md.TimeStart = &t
	}
	if t, ok := cleaned["timeEnd"].(time.Time); ok {
		md.TimeEnd = &t
	}
	return md
}

func metaString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return stringValue(v)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts the timestamp shapes devices submit: RFC 3339 with
// or without an offset, a space instead of the T, or a bare date. Values
// without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}
