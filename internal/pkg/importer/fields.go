package importer

import (
	"errors"
	"strings"

	"github.com/closerdesk/closerdesk/app/models"
)

var ErrUnknownKind = errors.New("unknown import kind")

// Field is a target column of an import kind.
type Field struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	// Ref names the reference kind the value must resolve to, if any.
	Ref string `json:"ref,omitempty"`
}

// Reference kinds resolved by name before rows are written.
const (
	RefProgram       = "program"
	RefPaymentMethod = "payment_method"
	RefCloser        = "closer"
	RefEvent         = "event"
)

var kindFields = map[string][]Field{
	models.IMPORT_KIND_LEADS: {
		{Name: "name", Required: true},
		{Name: "email", Required: true},
		{Name: "phone"},
		{Name: "country"},
		{Name: "timezone"},
		{Name: "utm_source"},
		{Name: "utm_medium"},
		{Name: "utm_campaign"},
		{Name: "event", Ref: RefEvent},
		{Name: "closer_email", Ref: RefCloser},
	},
	models.IMPORT_KIND_SALES: {
		{Name: "email", Required: true},
		{Name: "name"},
		{Name: "program", Required: true, Ref: RefProgram},
		{Name: "amount", Required: true},
		{Name: "payment_type"},
		{Name: "status"},
		{Name: "payment_method", Ref: RefPaymentMethod},
		{Name: "paid_at"},
		{Name: "reference"},
		{Name: "total_agreed"},
		{Name: "closer_email", Ref: RefCloser},
	},
}

// Fields lists the target columns of kind.
func Fields(kind string) ([]Field, error) {
	fields, ok := kindFields[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	return fields, nil
}

// Mapping maps a target field to a sheet header. Unmapped fields fall back to a
// header with the field's own name.
type Mapping map[string]string

func (m Mapping) headerFor(field string) string {
	if h := strings.TrimSpace(m[field]); h != "" {
		return normalizeHeader(h)
	}
	return field
}

// rowValues extracts the mapped fields of one row.
func rowValues(t *Table, fields []Field, m Mapping, row []string) map[string]string {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		values[f.Name] = t.Cell(row, m.headerFor(f.Name))
	}
	for _, name := range []string{"payment_type", "status"} {
		if v, ok := values[name]; ok {
			values[name] = strings.ToLower(v)
		}
	}
	return values
}

// missingFields lists required fields whose header is not in the sheet.
func missingFields(t *Table, fields []Field, m Mapping) []string {
	var missing []string
	for _, f := range fields {
		if f.Required && !t.HasHeader(m.headerFor(f.Name)) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

func refKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
