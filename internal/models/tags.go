package models

import (
	"bytes"
	"encoding/json"
)

// TagValue is one entry of TopLevelTags.
type TagValue struct {
	Name  string
	Value any
}

// TopLevelTags maps the xml's top level element names to their form values,
// in the order the elements first appear. Value is nil when the element has
// no counterpart in the form.
type TopLevelTags []TagValue

func (t TopLevelTags) Names() []string {
	names := make([]string, len(t))
	for i, tv := range t {
		names[i] = tv.Name
	}
	return names
}

func (t TopLevelTags) Get(name string) (any, bool) {
	for _, tv := range t {
		if tv.Name == name {
			return tv.Value, true
		}
	}
	return nil, false
}

// MarshalJSON renders the tags as a JSON object in document order.
func (t TopLevelTags) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tv := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(tv.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(tv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
