package models

import (
	"testing"
	"time"

	"github.com/Lllllllleong/xformflow/internal/docstore"
)

func TestXPath(t *testing.T) {
	doc := NewInstance("doc-1", "urn:reg", map[string]any{
		"name": "Ada",
		"meta": map[string]any{"userID": "u-1"},
		"items": []any{
			map[string]any{"label": "first"},
			map[string]any{"label": "second"},
		},
		"colors": "red  blue green",
	}, time.Now())

	cases := []struct {
		path   string
		want   any
		wantOK bool
	}{
		{"form/name", "Ada", true},
		{"/form/meta/userID/", "u-1", true},
		{"form/items/1/label", "second", true},
		{"xmlns", "urn:reg", true},
		{"doc_type", "XFormInstance", true},
		{"form/items/2/label", nil, false},
		{"form/items/x", nil, false},
		{"form/name/first", nil, false},
		{"form/missing", nil, false},
		{"", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			got, ok := doc.XPath(tc.path)
			if ok != tc.wantOK || got != tc.want {
				t.Fatalf("XPath(%q) = %#v, %v; want %#v, %v", tc.path, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestXPathCoversRecordKeys(t *testing.T) {
	received := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	archived := received.Add(time.Hour)
	doc := NewInstance("doc-1", "urn:reg", map[string]any{"name": "Ada"}, received)
	doc.DocType = DocTypeError
	doc.Revision = "3-abc"
	doc.Problem = "bad form"
	doc.ArchivedDate = &archived
	doc.SetAttachment(AttachmentName, docstore.AttachmentStub{ContentType: "text/xml", Length: 7, Digest: "md5-x"})

	cases := []struct {
		path string
		want any
	}{
		{"problem", "bad form"},
		{"_rev", "3-abc"},
		{"received_on", received},
		{"archived_date", archived},
		{"_attachments/form.xml/length", int64(7)},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			got, ok := doc.XPath(tc.path)
			if !ok || got != tc.want {
				t.Fatalf("XPath(%q) = %#v, %v; want %#v", tc.path, got, ok, tc.want)
			}
		})
	}
	if _, ok := doc.XPath("deprecated_date"); ok {
		t.Fatalf("unset deprecated_date must be absent")
	}
}

func TestFoundInMultiselectNode(t *testing.T) {
	doc := NewInstance("doc-1", "urn:reg", map[string]any{"colors": "red  blue green"}, time.Now())
	if !doc.FoundInMultiselectNode("form/colors", "blue") {
		t.Fatalf("expected blue to be selected")
	}
	if doc.FoundInMultiselectNode("form/colors", "gre") {
		t.Fatalf("partial tokens must not match")
	}
	if doc.FoundInMultiselectNode("form/shapes", "red") {
		t.Fatalf("missing node must not match")
	}
}
