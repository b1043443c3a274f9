package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// RemoteTable is the subset of base metadata needed to check a mapping.
type RemoteTable struct {
	Name   string
	Fields []string
}

// MetadataSource lists the tables of one remote base.
type MetadataSource interface {
	TableNames(ctx context.Context) ([]RemoteTable, error)
}

// CheckDC3 verifies that both DC-3 tables and all mapped fields exist remotely.
func (s Schema) CheckDC3(ctx context.Context, src MetadataSource) error {
	want := map[string][]string{
		s.DC3.UploadedTable:  s.DC3.ListFields(),
		s.DC3.GeneratedTable: s.DC3.ListFields(),
	}
	return checkRemote(ctx, src, want)
}

// CheckApplications verifies the applications table and its mapped fields.
func (s Schema) CheckApplications(ctx context.Context, src MetadataSource) error {
	want := map[string][]string{
		s.Applications.Table: {s.Applications.Fields.Notified, s.Applications.Fields.RecipientID},
	}
	return checkRemote(ctx, src, want)
}

func checkRemote(ctx context.Context, src MetadataSource, want map[string][]string) error {
	tables, err := src.TableNames(ctx)
	if err != nil {
		return fmt.Errorf("fetch base metadata: %w", err)
	}
	remote := make(map[string]map[string]struct{}, len(tables))
	for _, t := range tables {
		fields := make(map[string]struct{}, len(t.Fields))
		for _, f := range t.Fields {
			fields[f] = struct{}{}
		}
		remote[t.Name] = fields
	}
	var errs []error
	for _, table := range sortedKeysOf(want) {
		fields, ok := remote[table]
		if !ok {
			errs = append(errs, fmt.Errorf("schema: table %q not found in base", table))
			continue
		}
		for _, f := range want[table] {
			if _, ok := fields[f]; !ok {
				errs = append(errs, fmt.Errorf("schema: field %q not found in table %q", f, table))
			}
		}
	}
	return errors.Join(errs...)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysOf(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
