package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Elias24978/safety-app/internal/util"
	"github.com/Elias24978/safety-app/pkg/callable"
	"github.com/Elias24978/safety-app/pkg/domain"
	"github.com/Elias24978/safety-app/pkg/pushtoken"
	"github.com/Elias24978/safety-app/pkg/recordstore"
	"github.com/Elias24978/safety-app/pkg/schema"
)

const (
	defaultFileName = "documento.pdf"
	notImplemented  = "not implemented"
)

// Config wires the collaborators of the callable operations.
type Config struct {
	Records recordstore.Store
	Schema  schema.Schema
	Tokens  pushtoken.Store
}

// App implements the callable operations. Every method returns a
// *callable.Error for classified failures.
type App struct {
	records recordstore.Store
	schema  schema.Schema
	tokens  pushtoken.Store
}

// New validates cfg and constructs the app.
func New(cfg Config) (*App, error) {
	if cfg.Records == nil {
		return nil, errors.New("record store required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("push token store required")
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, err
	}
	return &App{records: cfg.Records, schema: cfg.Schema, tokens: cfg.Tokens}, nil
}

// StatusResult is the {success, message} response shape.
type StatusResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListResult is the response of ListDocuments.
type ListResult struct {
	Records []domain.Document `json:"records"`
}

// ExtractResult is the response of the extraction placeholder.
type ExtractResult struct {
	Status string `json:"status"`
}

// UploadDocument creates one record in the uploaded table owned by caller.
func (a *App) UploadDocument(ctx context.Context, caller *domain.Caller, in domain.NewDocument) (StatusResult, error) {
	if caller == nil || caller.UID == "" {
		return StatusResult{}, callable.Unauthenticated()
	}
	in.WorkerName = strings.TrimSpace(in.WorkerName)
	in.CourseName = strings.TrimSpace(in.CourseName)
	in.ExecutionDate = strings.TrimSpace(in.ExecutionDate)
	in.FileURL = strings.TrimSpace(in.FileURL)
	if in.WorkerName == "" || in.CourseName == "" || in.ExecutionDate == "" || in.FileURL == "" {
		return StatusResult{}, callable.InvalidArgument("Faltan datos para crear el registro.")
	}
	fileName := strings.TrimSpace(in.FileName)
	if fileName == "" {
		fileName = defaultFileName
	}

	f := a.schema.DC3.Fields
	fields := map[string]any{
		f.OwnerUserID:   caller.UID,
		f.WorkerName:    in.WorkerName,
		f.CourseName:    in.CourseName,
		f.ExecutionDate: in.ExecutionDate,
		f.File:          []recordstore.Attachment{{URL: in.FileURL, Filename: fileName}},
	}
	rec, err := a.records.Create(ctx, a.schema.DC3.UploadedTable, fields)
	if err != nil {
		util.LoggerFromContext(ctx).Error("dc3 create failed", "uid", caller.UID, "err", err)
		return StatusResult{}, callable.Internal("Error al guardar los datos en Airtable.", err)
	}
	util.LoggerFromContext(ctx).Info("dc3 created", "uid", caller.UID, "record_id", rec.ID)
	return StatusResult{Success: true, Message: "Registro creado en Airtable."}, nil
}

// ListDocuments returns the caller's documents of the requested type,
// newest execution date first.
func (a *App) ListDocuments(ctx context.Context, caller *domain.Caller, rawType string) (ListResult, error) {
	if caller == nil || caller.UID == "" {
		return ListResult{}, callable.Unauthenticated()
	}
	recordType := domain.ParseRecordType(rawType)
	opts := recordstore.SelectOptions{
		Filter: recordstore.Equals(a.schema.DC3.Fields.OwnerUserID, caller.UID),
		Fields: a.schema.DC3.ListFields(),
	}

	var docs []domain.Document
	switch recordType {
	case domain.RecordUploaded, domain.RecordGenerated:
		out, err := a.selectDocuments(ctx, recordType, opts)
		if err != nil {
			return ListResult{}, a.listFailed(ctx, caller, recordType, err)
		}
		docs = out
	default:
		var uploaded, generated []domain.Document
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			uploaded, err = a.selectDocuments(gctx, domain.RecordUploaded, opts)
			return err
		})
		g.Go(func() error {
			var err error
			generated, err = a.selectDocuments(gctx, domain.RecordGenerated, opts)
			return err
		})
		if err := g.Wait(); err != nil {
			return ListResult{}, a.listFailed(ctx, caller, recordType, err)
		}
		docs = append(uploaded, generated...)
	}

	if docs == nil {
		docs = []domain.Document{}
	}
	SortByExecutionDate(docs)
	return ListResult{Records: docs}, nil
}

func (a *App) selectDocuments(ctx context.Context, recordType domain.RecordType, opts recordstore.SelectOptions) ([]domain.Document, error) {
	table := a.schema.DC3.UploadedTable
	if recordType == domain.RecordGenerated {
		table = a.schema.DC3.GeneratedTable
	}
	recs, err := a.records.Select(ctx, table, opts)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	docs := make([]domain.Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, FormatDocument(rec, recordType, a.schema.DC3.Fields))
	}
	return docs, nil
}

func (a *App) listFailed(ctx context.Context, caller *domain.Caller, recordType domain.RecordType, err error) error {
	util.LoggerFromContext(ctx).Error("dc3 list failed", "uid", caller.UID, "type", recordType, "err", err)
	return callable.Internal("No se pudieron obtener los registros.", nil)
}

// DeleteDocument removes the caller's record from whichever DC-3 table
// holds it. Tables are searched in order; a record owned by someone else is
// treated as absent.
func (a *App) DeleteDocument(ctx context.Context, caller *domain.Caller, recordID string) (StatusResult, error) {
	if caller == nil || caller.UID == "" {
		return StatusResult{}, callable.Unauthenticated()
	}
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return StatusResult{}, callable.InvalidArgument("Se requiere el ID del registro para eliminarlo.")
	}

	logger := util.LoggerFromContext(ctx).With("uid", caller.UID, "record_id", recordID)
	var lastErr error
	for _, table := range a.schema.DC3.Tables() {
		err := a.deleteOwned(ctx, table, caller.UID, recordID)
		if err == nil {
			logger.Info("dc3 deleted", "table", table)
			return StatusResult{Success: true, Message: "Registro eliminado correctamente."}, nil
		}
		logger.Info("dc3 delete lookup missed", "table", table, "err", err)
		lastErr = err
	}
	logger.Warn("dc3 delete failed in every table", "err", lastErr)
	return StatusResult{}, callable.NotFound("El registro no se encontró o no se pudo eliminar.").WithDetails(lastErr.Error())
}

func (a *App) deleteOwned(ctx context.Context, table, uid, recordID string) error {
	recs, err := a.records.Select(ctx, table, recordstore.SelectOptions{
		Filter:     recordstore.And(recordstore.RecordIDEquals(recordID), recordstore.Equals(a.schema.DC3.Fields.OwnerUserID, uid)),
		Fields:     []string{a.schema.DC3.Fields.OwnerUserID},
		MaxRecords: 1,
	})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("record %s not found in %s", recordID, table)
	}
	return a.records.Destroy(ctx, table, recordID)
}

// ExtractData is a placeholder for document extraction. It accepts any
// JSON value as payload and needs no caller.
func (a *App) ExtractData(ctx context.Context, payload any) ExtractResult {
	logger := util.LoggerFromContext(ctx)
	if fields, ok := payload.(map[string]any); ok {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		logger.Info("extract called", "keys", keys)
	} else {
		logger.Info("extract called", "payload_type", fmt.Sprintf("%T", payload))
	}
	return ExtractResult{Status: notImplemented}
}

// RegisterPushToken stores the caller's device token, replacing any
// previous one. The digest job reads it when notifying the caller.
func (a *App) RegisterPushToken(ctx context.Context, caller *domain.Caller, token string) (StatusResult, error) {
	if caller == nil || caller.UID == "" {
		return StatusResult{}, callable.Unauthenticated()
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return StatusResult{}, callable.InvalidArgument("Se requiere el token del dispositivo.")
	}
	if err := a.tokens.Save(ctx, caller.UID, token); err != nil {
		util.LoggerFromContext(ctx).Error("push token save failed", "uid", caller.UID, "err", err)
		return StatusResult{}, callable.Internal("No se pudo registrar el token.", nil)
	}
	return StatusResult{Success: true}, nil
}
