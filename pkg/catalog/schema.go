package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

type kind int

const (
	kindString kind = iota
	kindInteger
	kindBool
)

func (k kind) String() string {
	switch k {
	case kindInteger:
		return "integer"
	case kindBool:
		return "boolean"
	}
	return "string"
}

type fieldSpec struct {
	name     string
	kind     kind
	required bool
}

var schema = []fieldSpec{
	{FieldCategory, kindString, true},
	{FieldDataSample, kindString, true},
	{FieldFormat, kindString, true},
	{FieldIsPublic, kindBool, true},
	{FieldOrgUUID, kindString, true},
	{FieldRecordCount, kindInteger, true},
	{FieldSize, kindInteger, true},
	{FieldSourceURI, kindString, true},
	{FieldTargetURI, kindString, true},
	{FieldTitle, kindString, true},
	{FieldCreationTime, kindString, false},
}

func lookupField(name string) (fieldSpec, bool) {
	for _, f := range schema {
		if f.name == name {
			return f, true
		}
	}
	return fieldSpec{}, false
}

// TimeFormat is the layout used when creationTime is filled in.
const TimeFormat = "2006-01-02T15:04:05.000000"

// Transformer validates incoming entries and fills in derived fields.
type Transformer struct {
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// NewTransformer returns a Transformer using the wall clock.
func NewTransformer() *Transformer {
	return &Transformer{Now: time.Now}
}

// Transform checks data against the entry schema and returns the decoded
// entry with creationTime defaulted when absent. Any schema violation,
// unknown field or malformed targetUri wraps ErrInvalidEntry.
func (t *Transformer) Transform(data []byte) (*Entry, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	var problems []string
	for _, f := range schema {
		v, ok := raw[f.name]
		if !ok {
			if f.required {
				problems = append(problems, f.name+": required field")
			}
			continue
		}
		if msg := checkKind(f, v); msg != "" {
			problems = append(problems, msg)
		}
	}
	problems = append(problems, unknownFields(raw)...)
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(problems, "; "))
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := ValidateTargetURI(e.TargetURI); err != nil {
		return nil, err
	}
	if _, ok := raw[FieldCreationTime]; !ok {
		now := time.Now
		if t.Now != nil {
			now = t.Now
		}
		e.CreationTime = now().Format(TimeFormat)
	}
	return &e, nil
}

// TransformWithID transforms a document carrying its ID in an id field,
// the shape bulk loads use. The id field is removed before validation.
func (t *Transformer) TransformWithID(data []byte) (string, *Entry, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", nil, fmt.Errorf("%w: not a JSON object", ErrInvalidEntry)
	}
	var id string
	if err := json.Unmarshal(fields["id"], &id); err != nil || id == "" {
		return "", nil, fmt.Errorf("%w: missing id", ErrInvalidEntry)
	}
	delete(fields, "id")

	body, err := json.Marshal(fields)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	e, err := t.Transform(body)
	if err != nil {
		return "", nil, err
	}
	return id, e, nil
}

// ValidateUpdate checks a partial update body: every key must be an entry
// field carrying a value of the field's type. It returns the decoded
// document ready to be merged into the stored entry.
func ValidateUpdate(data []byte) (map[string]any, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty update", ErrInvalidEntry)
	}

	problems := unknownFields(raw)
	doc := make(map[string]any, len(raw))
	for name, v := range raw {
		f, ok := lookupField(name)
		if !ok {
			continue
		}
		if msg := checkKind(f, v); msg != "" {
			problems = append(problems, msg)
			continue
		}
		var decoded any
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			problems = append(problems, name+": "+err.Error())
			continue
		}
		if n, ok := decoded.(json.Number); ok {
			i, _ := n.Int64()
			decoded = i
		}
		doc[name] = decoded
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(problems, "; "))
	}
	if uri, ok := doc[FieldTargetURI].(string); ok {
		if err := ValidateTargetURI(uri); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// ValidateTargetURI requires a scheme and a path other than "" and "/".
func ValidateTargetURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: targetUri: %v", ErrInvalidEntry, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: targetUri %q has no scheme", ErrInvalidEntry, raw)
	}
	if u.Path == "" || u.Path == "/" {
		return fmt.Errorf("%w: targetUri %q has no path", ErrInvalidEntry, raw)
	}
	return nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: body is not a JSON object: %v", ErrInvalidEntry, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrInvalidEntry)
	}
	return raw, nil
}

func unknownFields(raw map[string]json.RawMessage) []string {
	var problems []string
	for name := range raw {
		if _, ok := lookupField(name); !ok {
			problems = append(problems, name+": unknown field")
		}
	}
	return problems
}

func checkKind(f fieldSpec, v json.RawMessage) string {
	ok := false
	v = bytes.TrimSpace(v)
	switch {
	case len(v) == 0, bytes.Equal(v, []byte("null")):
	case f.kind == kindInteger && v[0] == '"':
	default:
		ok = matchesKind(f.kind, v)
	}
	if ok {
		return ""
	}
	return fmt.Sprintf("%s: must be of %s type", f.name, f.kind)
}

func matchesKind(k kind, v json.RawMessage) bool {
	ok := false
	switch k {
	case kindString:
		var s string
		ok = json.Unmarshal(v, &s) == nil
	case kindBool:
		var b bool
		ok = json.Unmarshal(v, &b) == nil
	case kindInteger:
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if dec.Decode(&n) == nil {
			i, err := n.Int64()
			ok = err == nil && i >= 0
		}
	}
	return ok
}
