// Package recordstore talks to the remote tabular database that holds DC-3
// documents and job applications.
package recordstore

import (
	"context"
	"errors"
)

// MaxBatchSize is the largest number of records the remote API accepts in
// one update call.
const MaxBatchSize = 10

// ErrBatchTooLarge is returned before any request when an update exceeds MaxBatchSize.
var ErrBatchTooLarge = errors.New("recordstore: batch exceeds 10 records")

// Store is the select/create/update/destroy contract of one remote base.
type Store interface {
	Select(ctx context.Context, table string, opts SelectOptions) ([]Record, error)
	Create(ctx context.Context, table string, fields map[string]any) (Record, error)
	Update(ctx context.Context, table string, updates []RecordUpdate) ([]Record, error)
	Destroy(ctx context.Context, table, id string) error
}

// SelectOptions narrows a select call.
type SelectOptions struct {
	Filter     Filter
	Fields     []string
	PageSize   int
	MaxRecords int
}

// RecordUpdate patches the given fields of one record.
type RecordUpdate struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}
