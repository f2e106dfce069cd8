// Package xmlform converts submitted form xml into the nested mapping stored
// on form documents.
package xmlform

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrEmptyPayload = errors.New("empty xml payload")

// ParseError wraps a payload that is not well-formed xml.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "invalid form xml: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

type element struct {
	name     string
	attrs    map[string]any
	children map[string]any
	text     strings.Builder
}

func newElement(start xml.StartElement) *element {
	el := &element{name: start.Name.Local}
	for _, attr := range start.Attr {
		if el.attrs == nil {
			el.attrs = map[string]any{}
		}
		el.attrs[attrKey(attr.Name)] = attr.Value
	}
	return el
}

func attrKey(name xml.Name) string {
	if name.Space == "xmlns" {
		return "@xmlns:" + name.Local
	}
	return "@" + name.Local
}

func (el *element) add(name string, value any) {
	if el.children == nil {
		el.children = map[string]any{}
	}
	prev, ok := el.children[name]
	if !ok {
		el.children[name] = value
		return
	}
	if list, isList := prev.([]any); isList {
		el.children[name] = append(list, value)
		return
	}
	el.children[name] = []any{prev, value}
}

// value renders a leaf as its trimmed text and anything with attributes or
// children as a mapping, keeping text under "#text".
func (el *element) value() any {
	text := strings.TrimSpace(el.text.String())
	if el.attrs == nil && el.children == nil {
		return text
	}
	out := make(map[string]any, len(el.attrs)+len(el.children)+1)
	for k, v := range el.attrs {
		out[k] = v
	}
	for k, v := range el.children {
		out[k] = v
	}
	if text != "" {
		out["#text"] = text
	}
	return out
}

// Parse decodes a form submission. The root element becomes the returned
// mapping with its local name under "#type" and its attributes under
// "@name" style keys; repeated child elements become lists. A direct child
// named Meta is stored as "meta". The second value is the root
// element's namespace.
func Parse(data []byte) (map[string]any, string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, "", ErrEmptyPayload
	}
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		stack []*element
		root  *element
		xmlns string
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", &ParseError{Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, "", &ParseError{Err: fmt.Errorf("unexpected second root element <%s>", t.Name.Local)}
			}
			el := newElement(t)
			if len(stack) == 0 {
				root = el
				xmlns = t.Name.Space
			}
			stack = append(stack, el)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			el := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				continue
			}
			name := el.name
			if len(stack) == 1 && name == "Meta" {
				name = "meta"
			}
			stack[len(stack)-1].add(name, el.value())
		}
	}
	if root == nil {
		return nil, "", &ParseError{Err: errors.New("no root element")}
	}

	form := make(map[string]any, len(root.attrs)+len(root.children)+1)
	for k, v := range root.attrs {
		form[k] = v
	}
	for k, v := range root.children {
		form[k] = v
	}
	if text := strings.TrimSpace(root.text.String()); text != "" {
		form["#text"] = text
	}
	form["#type"] = root.name
	return form, xmlns, nil
}
