package catalog

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedTransformer() *Transformer {
	return &Transformer{Now: func() time.Time {
		return time.Date(2015, 2, 24, 14, 56, 41, 123456000, time.UTC)
	}}
}

func validEntry() map[string]any {
	return map[string]any{
		"title":       "Health survey",
		"category":    "health",
		"dataSample":  "s",
		"format":      "csv",
		"recordCount": 13,
		"size":        99999,
		"sourceUri":   "u",
		"targetUri":   "hdfs://h/d/x",
		"isPublic":    true,
		"orgUUID":     "org02",
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestTransformFillsCreationTime(t *testing.T) {
	e, err := fixedTransformer().Transform(mustJSON(t, validEntry()))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if e.CreationTime != "2015-02-24T14:56:41.123456" {
		t.Errorf("creationTime = %q", e.CreationTime)
	}
	if e.OrgUUID != "org02" || e.RecordCount != 13 || e.Size != 99999 || !e.IsPublic {
		t.Errorf("fields not passed through: %+v", e)
	}
}

func TestTransformKeepsCreationTime(t *testing.T) {
	doc := validEntry()
	doc["creationTime"] = "2014-05-18T10:00:00"

	tr := fixedTransformer()
	e, err := tr.Transform(mustJSON(t, doc))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if e.CreationTime != "2014-05-18T10:00:00" {
		t.Fatalf("creationTime changed to %q", e.CreationTime)
	}

	again, err := tr.Transform(mustJSON(t, e))
	if err != nil {
		t.Fatalf("second Transform: %v", err)
	}
	if again.CreationTime != e.CreationTime {
		t.Errorf("creationTime not stable: %q -> %q", e.CreationTime, again.CreationTime)
	}
}

func TestTransformRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   string
	}{
		{"missing title", func(d map[string]any) { delete(d, "title") }, "title"},
		{"missing orgUUID", func(d map[string]any) { delete(d, "orgUUID") }, "orgUUID"},
		{"string size", func(d map[string]any) { d["size"] = "12" }, "size"},
		{"negative count", func(d map[string]any) { d["recordCount"] = -1 }, "recordCount"},
		{"fractional size", func(d map[string]any) { d["size"] = 1.5 }, "size"},
		{"string isPublic", func(d map[string]any) { d["isPublic"] = "true" }, "isPublic"},
		{"null category", func(d map[string]any) { d["category"] = nil }, "category"},
		{"unknown field", func(d map[string]any) { d["owner"] = "me" }, "owner"},
		{"no target path", func(d map[string]any) { d["targetUri"] = "http://" }, "targetUri"},
		{"root target path", func(d map[string]any) { d["targetUri"] = "hdfs://host/" }, "targetUri"},
		{"no target scheme", func(d map[string]any) { d["targetUri"] = "some_path" }, "targetUri"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validEntry()
			tt.mutate(doc)
			_, err := fixedTransformer().Transform(mustJSON(t, doc))
			if !errors.Is(err, ErrInvalidEntry) {
				t.Fatalf("expected ErrInvalidEntry, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

// Entries without a title are rejected even when every other field is valid.
func TestTransformRequiresTitle(t *testing.T) {
	body := `{"category": "health", "dataSample": "s", "format": "csv", "recordCount": 13,
		"size": 99999, "sourceUri": "u", "targetUri": "hdfs://h/d/x", "isPublic": true, "orgUUID": "org02"}`
	_, err := fixedTransformer().Transform([]byte(body))
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if !strings.Contains(err.Error(), "title: required field") {
		t.Errorf("error %q does not name the missing title", err)
	}
}

func TestTransformNotAnObject(t *testing.T) {
	for _, body := range []string{"", "[]", "null", "12", "{"} {
		if _, err := fixedTransformer().Transform([]byte(body)); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("Transform(%q): expected ErrInvalidEntry, got %v", body, err)
		}
	}
}

func TestTransformWithID(t *testing.T) {
	doc := validEntry()
	doc["id"] = "abc"
	id, e, err := fixedTransformer().TransformWithID(mustJSON(t, doc))
	if err != nil {
		t.Fatalf("TransformWithID: %v", err)
	}
	if id != "abc" || e.Title != "Health survey" {
		t.Errorf("got id %q entry %+v", id, e)
	}

	bad := [][]byte{
		mustJSON(t, validEntry()),
		[]byte(`{"id": 7}`),
		[]byte(`{"id": "x", "title": "only"}`),
		[]byte(`"text"`),
	}
	for _, body := range bad {
		if _, _, err := fixedTransformer().TransformWithID(body); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("TransformWithID(%s): expected ErrInvalidEntry, got %v", body, err)
		}
	}
}

func TestValidateUpdate(t *testing.T) {
	doc, err := ValidateUpdate([]byte(`{"isPublic": false, "size": 10}`))
	if err != nil {
		t.Fatalf("ValidateUpdate: %v", err)
	}
	if doc["isPublic"] != false {
		t.Errorf("isPublic = %v", doc["isPublic"])
	}
	if doc["size"] != int64(10) {
		t.Errorf("size = %#v", doc["size"])
	}

	bad := []string{
		`{}`,
		`{"owner": "x"}`,
		`{"isPublic": "no"}`,
		`{"targetUri": "nopath"}`,
		`[1]`,
	}
	for _, body := range bad {
		if _, err := ValidateUpdate([]byte(body)); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("ValidateUpdate(%s): expected ErrInvalidEntry, got %v", body, err)
		}
	}
}

func TestAuthContext(t *testing.T) {
	entry := &Entry{OrgUUID: "org01"}
	member := AuthContext{OrgUUIDs: []string{"org01"}}
	outsider := AuthContext{OrgUUIDs: []string{"org02"}}
	admin := AuthContext{IsAdmin: true}

	if !member.CanRead(entry) || outsider.CanRead(entry) || !admin.CanRead(entry) {
		t.Error("unexpected read access for private entry")
	}
	entry.IsPublic = true
	if !outsider.CanRead(entry) {
		t.Error("public entry should be readable by anyone")
	}
	if outsider.CanWrite("org01") || !member.CanWrite("org01") || !admin.CanWrite("any") {
		t.Error("unexpected write access")
	}
}

func TestIndexedFields(t *testing.T) {
	fields := IndexedFields()
	if len(fields) != 11 {
		t.Fatalf("expected 11 fields, got %d", len(fields))
	}
	if !IsIndexedField(FieldCreationTime) || IsIndexedField("id") {
		t.Error("unexpected indexed field membership")
	}
}
