package domain

import (
	"strings"
	"time"
)

// RecordType tags a DC-3 document with the table it was read from.
// It is derived at read time and never stored remotely.
type RecordType string

const (
	RecordUploaded  RecordType = "uploaded"
	RecordGenerated RecordType = "generated"
	RecordAll       RecordType = "all"
)

// ParseRecordType maps a client supplied type to a RecordType.
// Legacy client values ("Subido", "Generado") are accepted; anything else
// selects both tables.
func ParseRecordType(raw string) RecordType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RecordUploaded), "subido":
		return RecordUploaded
	case string(RecordGenerated), "generado":
		return RecordGenerated
	default:
		return RecordAll
	}
}

// Caller is the authenticated identity attached to a callable request.
type Caller struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// Document is the normalized view of a DC-3 record returned to clients.
type Document struct {
	ID            string     `json:"id"`
	WorkerName    string     `json:"workerName"`
	CourseName    string     `json:"courseName"`
	ExecutionDate string     `json:"executionDate,omitempty"`
	FileURL       string     `json:"fileUrl,omitempty"`
	RecordType    RecordType `json:"recordType"`
}

// NewDocument is the payload of an upload request.
type NewDocument struct {
	WorkerName    string `json:"workerName"`
	CourseName    string `json:"courseName"`
	ExecutionDate string `json:"executionDate"`
	FileURL       string `json:"fileUrl"`
	FileName      string `json:"fileName,omitempty"`
}

// Application is a job application row as seen by the digest job.
type Application struct {
	ID          string
	RecipientID string
}

// Notification is a single push message addressed to one device token.
type Notification struct {
	RecipientID string            `json:"recipientId"`
	Token       string            `json:"token"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}
