package recordstore

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process. It is used for local development and
// tests; filters are evaluated with Filter.Match.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]map[string]Record // table -> id -> record
	errs   map[string]error             // table -> forced error
	calls  []Call
}

// Call records one store invocation.
type Call struct {
	Op    string
	Table string
	Count int
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[string]Record),
		errs:   make(map[string]error),
	}
}

// AddTable creates an empty table. Selecting a table that was never added
// or written fails with a not-found error, like the remote API.
func (s *MemoryStore) AddTable(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]Record)
	}
}

// Put inserts or replaces a record.
func (s *MemoryStore) Put(table string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]Record)
	}
	s.tables[table][rec.ID] = copyRecord(rec)
}

// Get returns a stored record.
func (s *MemoryStore) Get(table, id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tables[table][id]
	if !ok {
		return Record{}, false
	}
	return copyRecord(rec), true
}

// Len returns the number of records in table.
func (s *MemoryStore) Len(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[table])
}

// FailTable makes every call against table return err. A nil err clears it.
func (s *MemoryStore) FailTable(table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, table)
		return
	}
	s.errs[table] = err
}

// Calls returns the recorded invocations in order.
func (s *MemoryStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Select returns matching records ordered by creation time then id.
func (s *MemoryStore) Select(ctx context.Context, table string, opts SelectOptions) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "select", Table: table})
	if err := s.errs[table]; err != nil {
		return nil, err
	}
	rows, ok := s.tables[table]
	if !ok {
		return nil, notFound("table " + table + " not found")
	}
	out := make([]Record, 0, len(rows))
	for _, rec := range rows {
		if opts.Filter != nil && !opts.Filter.Match(rec) {
			continue
		}
		out = append(out, project(rec, opts.Fields))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedTime.Equal(out[j].CreatedTime) {
			return out[i].CreatedTime.Before(out[j].CreatedTime)
		}
		return out[i].ID < out[j].ID
	})
	if opts.MaxRecords > 0 && len(out) > opts.MaxRecords {
		out = out[:opts.MaxRecords]
	}
	return out, nil
}

// Create stores a new record under a generated id.
func (s *MemoryStore) Create(ctx context.Context, table string, fields map[string]any) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "create", Table: table, Count: 1})
	if err := s.errs[table]; err != nil {
		return Record{}, err
	}
	rec := NewRecord("rec"+uuid.NewString()[:8], fields)
	rec.CreatedTime = time.Now().UTC()
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]Record)
	}
	s.tables[table][rec.ID] = rec
	return copyRecord(rec), nil
}

// Update merges fields into existing records. Unknown ids fail the whole call.
func (s *MemoryStore) Update(ctx context.Context, table string, updates []RecordUpdate) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(updates) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "update", Table: table, Count: len(updates)})
	if err := s.errs[table]; err != nil {
		return nil, err
	}
	rows := s.tables[table]
	for _, u := range updates {
		if _, ok := rows[u.ID]; !ok {
			return nil, notFound("record " + u.ID + " not found")
		}
	}
	out := make([]Record, 0, len(updates))
	for _, u := range updates {
		rec := rows[u.ID]
		rec.set(u.Fields)
		rows[u.ID] = rec
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

// Destroy removes a record.
func (s *MemoryStore) Destroy(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "destroy", Table: table, Count: 1})
	if err := s.errs[table]; err != nil {
		return err
	}
	if _, ok := s.tables[table][id]; !ok {
		return notFound("record " + id + " not found")
	}
	delete(s.tables[table], id)
	return nil
}

func notFound(msg string) error {
	return &APIError{Status: http.StatusNotFound, Type: "NOT_FOUND", Message: msg}
}

func project(rec Record, fields []string) Record {
	out := Record{ID: rec.ID, CreatedTime: rec.CreatedTime, Fields: make(map[string]json.RawMessage)}
	if len(fields) == 0 {
		for k, v := range rec.Fields {
			out.Fields[k] = v
		}
		return out
	}
	for _, name := range fields {
		if v, ok := rec.Fields[name]; ok {
			out.Fields[name] = v
		}
	}
	return out
}

func copyRecord(rec Record) Record {
	return project(rec, nil)
}
