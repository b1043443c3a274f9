package recordstore

import "strings"

// Filter is a server-side row predicate. It renders to the remote formula
// language and can also be evaluated locally by MemoryStore.
type Filter interface {
	Formula() string
	Match(Record) bool
}

// Equals matches records whose text field equals value.
func Equals(field, value string) Filter {
	return equalsFilter{field: field, value: value}
}

// IsFalse matches records whose checkbox field is unchecked or missing.
func IsFalse(field string) Filter {
	return falseFilter{field: field}
}

// RecordIDEquals matches the record with the given id.
func RecordIDEquals(id string) Filter {
	return idFilter{id: id}
}

// And matches records satisfying every filter.
func And(filters ...Filter) Filter {
	return andFilter(filters)
}

type equalsFilter struct {
	field string
	value string
}

func (f equalsFilter) Formula() string {
	return fieldRef(f.field) + " = " + quote(f.value)
}

func (f equalsFilter) Match(r Record) bool {
	return r.String(f.field) == f.value
}

type falseFilter struct {
	field string
}

func (f falseFilter) Formula() string {
	return "NOT(" + fieldRef(f.field) + ")"
}

func (f falseFilter) Match(r Record) bool {
	return !r.Bool(f.field)
}

type idFilter struct {
	id string
}

func (f idFilter) Formula() string {
	return "RECORD_ID() = " + quote(f.id)
}

func (f idFilter) Match(r Record) bool {
	return r.ID == f.id
}

type andFilter []Filter

func (f andFilter) Formula() string {
	if len(f) == 1 {
		return f[0].Formula()
	}
	parts := make([]string, 0, len(f))
	for _, sub := range f {
		parts = append(parts, sub.Formula())
	}
	return "AND(" + strings.Join(parts, ", ") + ")"
}

func (f andFilter) Match(r Record) bool {
	for _, sub := range f {
		if !sub.Match(r) {
			return false
		}
	}
	return true
}

func fieldRef(name string) string {
	return "{" + name + "}"
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quote(value string) string {
	return "'" + literalEscaper.Replace(value) + "'"
}
