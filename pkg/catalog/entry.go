// Package catalog holds the metadata entry model shared by every layer of
// the service: field names, schema validation, the authorization context
// and the error kinds.
package catalog

import "slices"

// Entry field names as stored in the index.
const (
	FieldTitle        = "title"
	FieldCategory     = "category"
	FieldDataSample   = "dataSample"
	FieldFormat       = "format"
	FieldRecordCount  = "recordCount"
	FieldSize         = "size"
	FieldSourceURI    = "sourceUri"
	FieldTargetURI    = "targetUri"
	FieldIsPublic     = "isPublic"
	FieldOrgUUID      = "orgUUID"
	FieldCreationTime = "creationTime"
)

// Entry describes one data set.
type Entry struct {
	Title        string `json:"title"`
	Category     string `json:"category"`
	DataSample   string `json:"dataSample"`
	Format       string `json:"format"`
	RecordCount  int64  `json:"recordCount"`
	Size         int64  `json:"size"`
	SourceURI    string `json:"sourceUri"`
	TargetURI    string `json:"targetUri"`
	IsPublic     bool   `json:"isPublic"`
	OrgUUID      string `json:"orgUUID"`
	CreationTime string `json:"creationTime,omitempty"`
}

// Hit is a stored entry together with its document ID.
type Hit struct {
	ID string `json:"id"`
	Entry
}

// IndexedFields returns the entry fields that filters may reference, in
// schema order.
func IndexedFields() []string {
	fields := make([]string, len(schema))
	for i, f := range schema {
		fields[i] = f.name
	}
	return fields
}

// IsIndexedField reports whether name is an entry field.
func IsIndexedField(name string) bool {
	return slices.ContainsFunc(schema, func(f fieldSpec) bool { return f.name == name })
}

// AuthContext is what the authorization layer knows about a caller. It is
// computed per request and never stored.
type AuthContext struct {
	IsAdmin  bool
	OrgUUIDs []string
}

// InScope reports whether org is one of the caller's organizations.
func (a AuthContext) InScope(org string) bool {
	return slices.Contains(a.OrgUUIDs, org)
}

// CanRead reports whether the caller may see e: admins see everything,
// others see public entries and those owned by their organizations.
func (a AuthContext) CanRead(e *Entry) bool {
	return a.IsAdmin || e.IsPublic || a.InScope(e.OrgUUID)
}

// CanWrite reports whether the caller may create or modify entries owned
// by org.
func (a AuthContext) CanWrite(org string) bool {
	return a.IsAdmin || a.InScope(org)
}
