package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mehanizm/airtable"
	"golang.org/x/time/rate"

	"github.com/Elias24978/safety-app/pkg/schema"
)

const (
	defaultBaseURL           = "https://api.airtable.com"
	defaultRequestsPerSecond = 5
	defaultPageSize          = 100
)

// Config configures a client bound to one remote base.
type Config struct {
	APIKey            string
	BaseID            string
	BaseURL           string
	RequestsPerSecond float64
}

// Client calls the remote record API for one base through the airtable SDK.
// The SDK calls are not cancellable, so the context gates admission only.
type Client struct {
	at      *airtable.Client
	baseID  string
	limiter *rate.Limiter
}

// APIError represents an error response from the record API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Type != "" {
		return e.Type
	}
	return fmt.Sprintf("record api status %d", e.Status)
}

// IsNotFound reports whether err means the table or record does not exist.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusNotFound {
		return true
	}
	switch apiErr.Type {
	case "NOT_FOUND", "MODEL_ID_NOT_FOUND", "ROW_DOES_NOT_EXIST", "TABLE_NOT_FOUND":
		return true
	}
	return false
}

// NewClient constructs a client. APIKey and BaseID are required.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("record store api key required")
	}
	baseID := strings.TrimSpace(cfg.BaseID)
	if baseID == "" {
		return nil, errors.New("record store base id required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}

	at := airtable.NewClient(apiKey)
	if err := at.SetBaseURL(baseURL + "/v0"); err != nil {
		return nil, fmt.Errorf("record store base url: %w", err)
	}
	// The SDK ticker needs a whole number; the local limiter keeps the exact rate.
	at.SetRateLimit(max(1, int(rps+0.5)))

	return &Client{
		at:      at,
		baseID:  baseID,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Select returns every record matching opts, following pagination.
func (c *Client) Select(ctx context.Context, table string, opts SelectOptions) ([]Record, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	tbl := c.at.GetTable(c.baseID, table)
	var (
		out    []Record
		offset string
	)
	for {
		if err := c.admit(ctx); err != nil {
			return nil, err
		}
		req := tbl.GetRecords().PageSize(pageSize)
		if opts.Filter != nil {
			req = req.WithFilterFormula(opts.Filter.Formula())
		}
		if len(opts.Fields) > 0 {
			req = req.ReturnFields(opts.Fields...)
		}
		if opts.MaxRecords > 0 {
			req = req.MaxRecords(opts.MaxRecords)
		}
		if offset != "" {
			req = req.WithOffset(offset)
		}
		page, err := req.Do()
		if err != nil {
			return nil, toAPIError(err)
		}
		for _, rec := range page.Records {
			out = append(out, fromSDK(rec))
		}
		if page.Offset == "" {
			return out, nil
		}
		if opts.MaxRecords > 0 && len(out) >= opts.MaxRecords {
			return out[:opts.MaxRecords], nil
		}
		offset = page.Offset
	}
}

// Create inserts one record and returns it as stored.
func (c *Client) Create(ctx context.Context, table string, fields map[string]any) (Record, error) {
	if err := c.admit(ctx); err != nil {
		return Record{}, err
	}
	created, err := c.at.GetTable(c.baseID, table).AddRecords(&airtable.Records{
		Records: []*airtable.Record{{Fields: fields}},
	})
	if err != nil {
		return Record{}, toAPIError(err)
	}
	if created == nil || len(created.Records) == 0 {
		return Record{}, errors.New("record store returned no created record")
	}
	return fromSDK(created.Records[0]), nil
}

// Update patches up to MaxBatchSize records in one call.
func (c *Client) Update(ctx context.Context, table string, updates []RecordUpdate) ([]Record, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	if len(updates) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	if err := c.admit(ctx); err != nil {
		return nil, err
	}
	batch := &airtable.Records{Records: make([]*airtable.Record, 0, len(updates))}
	for _, u := range updates {
		batch.Records = append(batch.Records, &airtable.Record{ID: u.ID, Fields: u.Fields})
	}
	updated, err := c.at.GetTable(c.baseID, table).UpdateRecordsPartial(batch)
	if err != nil {
		return nil, toAPIError(err)
	}
	if updated == nil {
		return nil, nil
	}
	out := make([]Record, 0, len(updated.Records))
	for _, rec := range updated.Records {
		out = append(out, fromSDK(rec))
	}
	return out, nil
}

// Destroy deletes one record by id.
func (c *Client) Destroy(ctx context.Context, table, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("record id required")
	}
	if err := c.admit(ctx); err != nil {
		return err
	}
	resp, err := c.at.GetTable(c.baseID, table).DeleteRecords([]string{id})
	if err != nil {
		return toAPIError(err)
	}
	if resp != nil {
		for _, rec := range resp.Records {
			if rec != nil && rec.ID == id && rec.Deleted {
				return nil
			}
		}
	}
	return &APIError{Status: http.StatusNotFound, Type: "NOT_FOUND", Message: "record was not deleted"}
}

// TableNames lists the tables and field names of the base.
func (c *Client) TableNames(ctx context.Context) ([]schema.RemoteTable, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}
	resp, err := c.at.GetBaseSchema(c.baseID).Do()
	if err != nil {
		return nil, toAPIError(err)
	}
	if resp == nil {
		return nil, nil
	}
	out := make([]schema.RemoteTable, 0, len(resp.Tables))
	for _, t := range resp.Tables {
		if t == nil {
			continue
		}
		table := schema.RemoteTable{Name: t.Name}
		for _, f := range t.Fields {
			if f != nil {
				table.Fields = append(table.Fields, f.Name)
			}
		}
		out = append(out, table)
	}
	return out, nil
}

func (c *Client) admit(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

func fromSDK(rec *airtable.Record) Record {
	if rec == nil {
		return Record{}
	}
	out := NewRecord(rec.ID, rec.Fields)
	if rec.CreatedTime != "" {
		if ts, err := time.Parse(time.RFC3339, rec.CreatedTime); err == nil {
			out.CreatedTime = ts
		}
	}
	return out
}

// toAPIError maps an SDK failure to an APIError. The SDK keeps the response
// body inside its error text, so the error envelope is recovered from there.
func toAPIError(err error) error {
	var httpErr *airtable.HTTPClientError
	if !errors.As(err, &httpErr) {
		return err
	}
	apiErr := &APIError{Status: httpErr.StatusCode}
	text := ""
	if httpErr.Err != nil {
		text = httpErr.Err.Error()
	}
	if raw, ok := errorEnvelope(text); ok {
		var detail struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil {
			apiErr.Type = detail.Type
			apiErr.Message = detail.Message
		} else {
			var code string
			if err := json.Unmarshal(raw, &code); err == nil {
				apiErr.Type = code
			}
		}
	}
	if apiErr.Type == "" && apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("%d %s", apiErr.Status, http.StatusText(apiErr.Status))
	}
	return apiErr
}

func errorEnvelope(text string) (json.RawMessage, bool) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var payload struct {
			Error json.RawMessage `json:"error"`
		}
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&payload); err == nil && len(payload.Error) > 0 {
			return payload.Error, true
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, false
}
