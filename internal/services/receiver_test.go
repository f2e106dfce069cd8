package services

import (
	"context"
	"strings"
	"testing"

	"github.com/Lllllllleong/xformflow/internal/docstore"
	"github.com/Lllllllleong/xformflow/internal/models"
)

func TestReceiverStoresNewSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	receiver := NewReceiverWithService(f.svc)

	res, err := receiver.Process(ctx, &models.SubmissionRequest{
		XML: sampleXML,
		Attachments: []models.SubmissionAttachment{
			{Name: "photo.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
			{Name: models.AttachmentName, ContentType: "text/xml", Data: []byte("<spoof/>")},
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != models.StatusReceived || res.DocumentID != "inst-1" || res.DocType != models.DocTypeInstance {
		t.Fatalf("unexpected response %+v", res)
	}
	if len(res.Attachments) != 1 || res.Attachments[0].Name != "photo.jpg" || res.Attachments[0].Length != 3 {
		t.Fatalf("unexpected attachments %+v", res.Attachments)
	}

	doc, err := f.svc.Get(ctx, "inst-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Xmlns != "urn:reg" || doc.Name() != "Registration" || doc.Type() != "data" {
		t.Fatalf("unexpected doc %+v", doc)
	}
	xml, err := f.svc.GetXML(ctx, doc)
	if err != nil || string(xml) != sampleXML {
		t.Fatalf("unexpected xml %q, %v", xml, err)
	}
	if aux := doc.AttachmentsExcludingPrimary(); len(aux) != 1 {
		t.Fatalf("unexpected auxiliary attachments %+v", aux)
	}
}

func TestReceiverFlagsDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	receiver := NewReceiverWithService(f.svc)

	if _, err := receiver.Process(ctx, &models.SubmissionRequest{XML: sampleXML}); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	res, err := receiver.Process(ctx, &models.SubmissionRequest{XML: sampleXML})
	if err != nil {
		t.Fatalf("second submission: %v", err)
	}
	if res.Status != models.StatusDuplicate || res.DocType != models.DocTypeDuplicate || res.DocumentID == "inst-1" {
		t.Fatalf("unexpected response %+v", res)
	}

	dup, err := f.svc.Get(ctx, res.DocumentID)
	if err != nil {
		t.Fatalf("get duplicate: %v", err)
	}
	if dup.DocType != models.DocTypeDuplicate || !strings.Contains(dup.Problem, "inst-1") {
		t.Fatalf("unexpected duplicate %+v", dup)
	}
	orig, err := f.svc.Get(ctx, "inst-1")
	if err != nil || orig.DocType != models.DocTypeInstance {
		t.Fatalf("original should stay an instance, got %+v, %v", orig, err)
	}
}

func TestReceiverDeprecatesEditedSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	receiver := NewReceiverWithService(f.svc)

	if _, err := receiver.Process(ctx, &models.SubmissionRequest{
		XML:         sampleXML,
		Attachments: []models.SubmissionAttachment{{Name: "notes.txt", ContentType: "text/plain", Data: []byte("v1")}},
	}); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	edited := strings.Replace(sampleXML, "<name>Ada</name>", "<name>Grace</name>", 1)
	res, err := receiver.Process(ctx, &models.SubmissionRequest{XML: edited})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if res.Status != models.StatusEdited || res.DocumentID != "inst-1" || res.DeprecatedID == "" {
		t.Fatalf("unexpected response %+v", res)
	}

	current, err := f.svc.Get(ctx, "inst-1")
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if current.DocType != models.DocTypeInstance || current.Form["name"] != "Grace" {
		t.Fatalf("unexpected current doc %+v", current)
	}
	xml, err := f.svc.GetXML(ctx, current)
	if err != nil || string(xml) != edited {
		t.Fatalf("unexpected current xml %q, %v", xml, err)
	}
	if aux := current.AttachmentsExcludingPrimary(); len(aux) != 0 {
		t.Fatalf("edited instance kept attachments of the previous version: %+v", aux)
	}
	if _, err := f.store.FetchAttachment(ctx, "inst-1", "notes.txt"); !docstore.IsNotFound(err) {
		t.Fatalf("expected old attachment removed from the original id, got %v", err)
	}

	old, err := f.svc.Get(ctx, res.DeprecatedID)
	if err != nil {
		t.Fatalf("get deprecated: %v", err)
	}
	if old.DocType != models.DocTypeDeprecated || old.DeprecatedDate == nil || old.Form["name"] != "Ada" {
		t.Fatalf("unexpected deprecated doc %+v", old)
	}
	if old.Extra[origIDKey] != "inst-1" {
		t.Fatalf("deprecated copy should point at the original, extra %+v", old.Extra)
	}
	oldXML, err := f.svc.GetXML(ctx, old)
	if err != nil || string(oldXML) != sampleXML {
		t.Fatalf("unexpected deprecated xml %q, %v", oldXML, err)
	}
	notes, err := f.store.FetchAttachment(ctx, old.ID, "notes.txt")
	if err != nil || string(notes) != "v1" {
		t.Fatalf("auxiliary attachment not copied: %q, %v", notes, err)
	}

	if len(f.sink.events) != 1 || f.sink.events[0].event != EventDeprecated || f.sink.events[0].id != old.ID {
		t.Fatalf("unexpected events %+v", f.sink.events)
	}
}

func TestReceiverEditKeepsOnlyNewAttachments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	receiver := NewReceiverWithService(f.svc)

	if _, err := receiver.Process(ctx, &models.SubmissionRequest{
		XML: sampleXML,
		Attachments: []models.SubmissionAttachment{
			{Name: "photo.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
			{Name: "notes.txt", ContentType: "text/plain", Data: []byte("v1")},
		},
	}); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	edited := strings.Replace(sampleXML, "<name>Ada</name>", "<name>Grace</name>", 1)
	res, err := receiver.Process(ctx, &models.SubmissionRequest{
		XML:         edited,
		Attachments: []models.SubmissionAttachment{{Name: "notes.txt", ContentType: "text/plain", Data: []byte("v2")}},
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}

	current, err := f.svc.Get(ctx, "inst-1")
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	aux := current.AttachmentsExcludingPrimary()
	if _, ok := aux["notes.txt"]; len(aux) != 1 || !ok {
		t.Fatalf("unexpected attachments on edited instance %+v", aux)
	}
	notes, err := f.store.FetchAttachment(ctx, "inst-1", "notes.txt")
	if err != nil || string(notes) != "v2" {
		t.Fatalf("unexpected notes %q, %v", notes, err)
	}

	old, err := f.svc.Get(ctx, res.DeprecatedID)
	if err != nil {
		t.Fatalf("get deprecated: %v", err)
	}
	if aux := old.AttachmentsExcludingPrimary(); len(aux) != 2 {
		t.Fatalf("deprecated copy should keep both attachments, got %+v", aux)
	}
}

func TestReceiverLogsUnparseableSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	receiver := NewReceiverWithService(f.svc)

	raw := "<data><name>Ada</data>"
	res, err := receiver.Process(ctx, &models.SubmissionRequest{XML: raw})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != models.StatusError || res.DocType != models.DocTypeSubmissionErrorLog {
		t.Fatalf("unexpected response %+v", res)
	}
	log, err := f.svc.GetErrorLog(ctx, res.DocumentID)
	if err != nil {
		t.Fatalf("get error log: %v", err)
	}
	if log.MD5 != models.MD5Hex([]byte(raw)) || log.Problem == "" {
		t.Fatalf("unexpected error log %+v", log)
	}
	got, err := f.svc.ErrorLogXML(ctx, log)
	if err != nil || string(got) != raw {
		t.Fatalf("unexpected payload %q, %v", got, err)
	}
}

func TestReceiverGeneratesIDWithoutInstanceID(t *testing.T) {
	f := newFixture(t, nil)
	receiver := NewReceiverWithService(f.svc)
	res, err := receiver.Process(context.Background(), &models.SubmissionRequest{XML: `<data xmlns="urn:x"><name>n</name></data>`})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.DocumentID != "gen-1" {
		t.Fatalf("expected generated id, got %q", res.DocumentID)
	}
}
