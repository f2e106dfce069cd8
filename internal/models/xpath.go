package models

import (
	"strconv"
	"strings"

	"github.com/Lllllllleong/xformflow/internal/docstore"
)

// SafeIndex walks root one key at a time. Mapping steps look the key up,
// list steps take the key as a zero-based index. It reports false as soon as
// a segment is missing or the value cannot be indexed.
func SafeIndex(root any, keys []string) (any, bool) {
	cur := root
	for _, key := range keys {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		case docstore.Record:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// XPath looks up a slash-delimited path such as "form/meta/userID" against
// the document. Paths start at the record root, so form fields are always
// prefixed with "form/".
func (d *FormDocument) XPath(path string) (any, bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, false
	}
	return SafeIndex(d.xpathView(), strings.Split(path, "/"))
}

// xpathView lays the document out under the same keys as its stored record.
// Optional keys are present only when set.
func (d *FormDocument) xpathView() map[string]any {
	view := make(map[string]any, len(d.Extra)+12)
	for k, v := range d.Extra {
		view[k] = v
	}
	view[TagForm] = d.Form
	view["xmlns"] = d.Xmlns
	view[docstore.KeyDocType] = string(d.DocType)
	view[docstore.KeyID] = d.ID
	view["partial_submission"] = d.PartialSubmission
	view["received_on"] = d.ReceivedOn
	if d.Revision != "" {
		view[docstore.KeyRevision] = d.Revision
	}
	if d.Problem != "" {
		view["problem"] = d.Problem
	}
	if d.DeprecatedDate != nil {
		view["deprecated_date"] = *d.DeprecatedDate
	}
	if d.ArchivedDate != nil {
		view["archived_date"] = *d.ArchivedDate
	}
	if len(d.Attachments) > 0 {
		view[docstore.KeyAttachments] = docstore.StubsValue(d.Attachments)
	}
	if d.LegacyXML != "" {
		view[TagXML] = d.LegacyXML
	}
	return view
}

// FoundInMultiselectNode reports whether option is one of the space
// separated values selected at path.
func (d *FormDocument) FoundInMultiselectNode(path, option string) bool {
	v, ok := d.XPath(path)
	if !ok || v == nil {
		return false
	}
	for _, token := range strings.Fields(stringValue(v)) {
		if token == option {
			return true
		}
	}
	return false
}
