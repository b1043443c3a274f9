// Package schema maps logical record fields to the exact field and table names
// used in the remote record store. Filters, field lists and writes are all
// built from this mapping so a renamed column only has to change in one place.
package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only mapping version this build understands.
const CurrentVersion = "v1"

// DC3Fields names the columns shared by the uploaded and generated tables.
type DC3Fields struct {
	OwnerUserID   string `yaml:"ownerUserId"`
	WorkerName    string `yaml:"workerName"`
	CourseName    string `yaml:"courseName"`
	ExecutionDate string `yaml:"executionDate"`
	File          string `yaml:"file"`
}

// DC3 describes the two DC-3 document tables.
type DC3 struct {
	UploadedTable  string    `yaml:"uploadedTable"`
	GeneratedTable string    `yaml:"generatedTable"`
	Fields         DC3Fields `yaml:"fields"`
}

// ApplicationFields names the columns read and written by the digest job.
type ApplicationFields struct {
	Notified    string `yaml:"notified"`
	RecipientID string `yaml:"recipientId"`
}

// Applications describes the job applications table.
type Applications struct {
	Table  string            `yaml:"table"`
	Fields ApplicationFields `yaml:"fields"`
}

// Schema is the versioned mapping for every table the backend touches.
type Schema struct {
	Version      string       `yaml:"version"`
	DC3          DC3          `yaml:"dc3"`
	Applications Applications `yaml:"applications"`
}

// Default returns the v1 mapping matching the production bases.
func Default() Schema {
	return Schema{
		Version: CurrentVersion,
		DC3: DC3{
			UploadedTable:  "DC3_Subidos",
			GeneratedTable: "DC3_Generados",
			Fields: DC3Fields{
				OwnerUserID:   "UserId",
				WorkerName:    "Nombre del Trabajador",
				CourseName:    "Nombre del Curso",
				ExecutionDate: "Periodo de Ejecución",
				File:          "Archivo DC-3",
			},
		},
		Applications: Applications{
			Table: "Aplicaciones",
			Fields: ApplicationFields{
				Notified:    "Notificacion_Enviada",
				RecipientID: "UserID_Reclutador_Vacante",
			},
		},
	}
}

// Load reads a mapping from a YAML file. An empty path yields Default().
// The result is always validated.
func Load(path string) (Schema, error) {
	if strings.TrimSpace(path) == "" {
		s := Default()
		return s, s.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema: %w", err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// ListFields returns the remote field names requested when listing documents.
func (d DC3) ListFields() []string {
	return []string{
		d.Fields.WorkerName,
		d.Fields.CourseName,
		d.Fields.ExecutionDate,
		d.Fields.File,
		d.Fields.OwnerUserID,
	}
}

// Tables returns the DC-3 tables in delete search order.
func (d DC3) Tables() []string {
	return []string{d.UploadedTable, d.GeneratedTable}
}

// Validate checks the mapping for errors that would otherwise only show up
// as empty query results at runtime.
func (s Schema) Validate() error {
	var errs []error
	if s.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("schema: unsupported version %q (want %q)", s.Version, CurrentVersion))
	}
	errs = append(errs, checkNames("dc3", map[string]string{
		"uploadedTable":  s.DC3.UploadedTable,
		"generatedTable": s.DC3.GeneratedTable,
	})...)
	if s.DC3.UploadedTable != "" && s.DC3.UploadedTable == s.DC3.GeneratedTable {
		errs = append(errs, errors.New("schema: dc3 uploadedTable and generatedTable must differ"))
	}
	errs = append(errs, checkFields("dc3.fields", map[string]string{
		"ownerUserId":   s.DC3.Fields.OwnerUserID,
		"workerName":    s.DC3.Fields.WorkerName,
		"courseName":    s.DC3.Fields.CourseName,
		"executionDate": s.DC3.Fields.ExecutionDate,
		"file":          s.DC3.Fields.File,
	})...)
	errs = append(errs, checkNames("applications", map[string]string{
		"table": s.Applications.Table,
	})...)
	errs = append(errs, checkFields("applications.fields", map[string]string{
		"notified":    s.Applications.Fields.Notified,
		"recipientId": s.Applications.Fields.RecipientID,
	})...)
	return errors.Join(errs...)
}

func checkNames(scope string, names map[string]string) []error {
	var errs []error
	for _, key := range sortedKeys(names) {
		if strings.TrimSpace(names[key]) == "" {
			errs = append(errs, fmt.Errorf("schema: %s.%s is required", scope, key))
		}
	}
	return errs
}

func checkFields(scope string, fields map[string]string) []error {
	errs := checkNames(scope, fields)
	seen := make(map[string]string, len(fields))
	for _, key := range sortedKeys(fields) {
		name := fields[key]
		if name == "" {
			continue
		}
		if strings.ContainsAny(name, "{}") {
			errs = append(errs, fmt.Errorf("schema: %s.%s %q cannot contain braces", scope, key, name))
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("schema: %s.%s and %s.%s both map to %q", scope, prev, scope, key, name))
			continue
		}
		seen[name] = key
	}
	return errs
}
