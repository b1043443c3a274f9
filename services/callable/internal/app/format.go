package app

import (
	"sort"
	"strings"
	"time"

	"github.com/Elias24978/safety-app/pkg/domain"
	"github.com/Elias24978/safety-app/pkg/recordstore"
	"github.com/Elias24978/safety-app/pkg/schema"
)

const missingName = "N/A"

// FormatDocument maps a raw DC-3 record to the client view.
func FormatDocument(rec recordstore.Record, recordType domain.RecordType, fields schema.DC3Fields) domain.Document {
	doc := domain.Document{
		ID:            rec.ID,
		WorkerName:    orMissing(rec.String(fields.WorkerName)),
		CourseName:    orMissing(rec.String(fields.CourseName)),
		ExecutionDate: strings.TrimSpace(rec.String(fields.ExecutionDate)),
		RecordType:    recordType,
	}
	for _, att := range rec.Attachments(fields.File) {
		if att.URL != "" {
			doc.FileURL = att.URL
			break
		}
	}
	return doc
}

func orMissing(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return missingName
	}
	return v
}

// RFC3339 parsing accepts fractional seconds, so it covers the
// millisecond timestamps the mobile client sends. Slash dates are
// day/month/year as written in Mexico: "03/04/2024" is 3 April.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"02/01/2006",
}

// ParseExecutionDate parses the stored execution date. Missing or
// unparseable values return the Unix epoch so they sort as oldest.
func ParseExecutionDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Unix(0, 0).UTC()
}

// SortByExecutionDate orders docs newest first. Equal dates keep their
// input order.
func SortByExecutionDate(docs []domain.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return ParseExecutionDate(docs[i].ExecutionDate).After(ParseExecutionDate(docs[j].ExecutionDate))
	})
}
