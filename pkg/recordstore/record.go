package recordstore

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Record is one remote row. Field values are kept raw and decoded on access.
type Record struct {
	ID          string                     `json:"id"`
	CreatedTime time.Time                  `json:"createdTime"`
	Fields      map[string]json.RawMessage `json:"fields"`
}

// Attachment is an entry of an attachment field.
type Attachment struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// NewRecord builds a record from plain Go values.
func NewRecord(id string, fields map[string]any) Record {
	rec := Record{ID: id, Fields: make(map[string]json.RawMessage, len(fields))}
	rec.set(fields)
	return rec
}

func (r *Record) set(fields map[string]any) {
	if r.Fields == nil {
		r.Fields = make(map[string]json.RawMessage, len(fields))
	}
	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			continue
		}
		r.Fields[name] = raw
	}
}

// String returns a text (or numeric) field as a string.
func (r Record) String(field string) string {
	raw, ok := r.Fields[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

// Bool returns a checkbox field. Missing means false.
func (r Record) Bool(field string) bool {
	raw, ok := r.Fields[field]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return false
}

// Attachments returns the entries of an attachment field.
func (r Record) Attachments(field string) []Attachment {
	raw, ok := r.Fields[field]
	if !ok {
		return nil
	}
	var out []Attachment
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// FirstString returns the first non-empty value of a lookup or linked field.
// Plain text fields are returned as is.
func (r Record) FirstString(field string) string {
	raw, ok := r.Fields[field]
	if !ok {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, v := range list {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}
	return strings.TrimSpace(r.String(field))
}
