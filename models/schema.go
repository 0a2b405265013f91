package models

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// FieldKind selects the validation rule applied to a field.
type FieldKind string

const (
	KindText   FieldKind = "text"
	KindPhone  FieldKind = "phone"
	KindDigits FieldKind = "digits"
)

// PhoneDigits is the exact length of a phone field.
const PhoneDigits = 10

// Field describes one captured column.
type Field struct {
	Name      string    `yaml:"name" json:"name"`
	Label     string    `yaml:"label" json:"label"`
	Kind      FieldKind `yaml:"kind" json:"kind"`
	MaxLength int       `yaml:"max_length,omitempty" json:"max_length,omitempty"`
}

// Schema is the field set of the capture table. Every field is required.
type Schema struct {
	Name   string  `yaml:"name" json:"name"`
	Table  string  `yaml:"table" json:"table"`
	Fields []Field `yaml:"fields" json:"fields"`
}

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Columns owned by the repository; schema fields may not reuse them.
var reservedColumns = map[string]struct{}{
	"id":         {},
	"owner":      {},
	"latitude":   {},
	"longitude":  {},
	"created_at": {},
}

// AddressSchema is the street-address form.
var AddressSchema = Schema{
	Name:  "address",
	Table: "capturas",
	Fields: []Field{
		{Name: "calle", Label: "Calle", Kind: KindText},
		{Name: "numero", Label: "Número", Kind: KindText},
		{Name: "colonia", Label: "Colonia", Kind: KindText},
		{Name: "cp", Label: "CP", Kind: KindText},
		{Name: "ciudad", Label: "Ciudad", Kind: KindText},
		{Name: "nombre", Label: "Nombre", Kind: KindText},
		{Name: "apellido_paterno", Label: "Apellido Paterno", Kind: KindText},
		{Name: "apellido_materno", Label: "Apellido Materno", Kind: KindText},
		{Name: "seccion", Label: "Sección", Kind: KindText},
		{Name: "celular", Label: "Celular (10 dígitos)", Kind: KindPhone, MaxLength: PhoneDigits},
	},
}

// DemographicSchema is the shorter contact form.
var DemographicSchema = Schema{
	Name:  "demographic",
	Table: "registros",
	Fields: []Field{
		{Name: "nombre", Label: "Nombre", Kind: KindText},
		{Name: "seccion", Label: "Sección", Kind: KindText},
		{Name: "telefono", Label: "Teléfono (10 dígitos)", Kind: KindPhone, MaxLength: PhoneDigits},
		{Name: "direccion", Label: "Dirección", Kind: KindText},
		{Name: "edad", Label: "Edad", Kind: KindDigits, MaxLength: 3},
	},
}

// BuiltinSchema looks up a schema by name.
func BuiltinSchema(name string) (Schema, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AddressSchema.Name:
		return AddressSchema, true
	case DemographicSchema.Name:
		return DemographicSchema, true
	}
	return Schema{}, false
}

// ParseSchemaYAML decodes and checks a schema definition.
func ParseSchemaYAML(data []byte) (Schema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Schema{}, fmt.Errorf("schema: definition is empty")
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("schema: decode: %w", err)
	}
	s = s.normalized()
	if err := s.Check(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// LoadSchemaFile reads a YAML schema from disk.
func LoadSchemaFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("schema: read %s: %w", path, err)
	}
	s, err := ParseSchemaYAML(data)
	if err != nil {
		return Schema{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s Schema) normalized() Schema {
	s.Name = strings.TrimSpace(s.Name)
	s.Table = strings.ToLower(strings.TrimSpace(s.Table))
	fields := make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		f.Name = strings.ToLower(strings.TrimSpace(f.Name))
		f.Label = strings.TrimSpace(f.Label)
		if f.Label == "" {
			f.Label = f.Name
		}
		f.Kind = FieldKind(strings.ToLower(strings.TrimSpace(string(f.Kind))))
		if f.Kind == "" {
			f.Kind = KindText
		}
		fields[i] = f
	}
	s.Fields = fields
	return s
}

// Check verifies the schema can be turned into a table definition.
func (s Schema) Check() error {
	if !identifierPattern.MatchString(s.Table) {
		return fmt.Errorf("schema: invalid table name %q", s.Table)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema: %s has no fields", s.Table)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if !identifierPattern.MatchString(f.Name) {
			return fmt.Errorf("schema: invalid field name %q", f.Name)
		}
		if _, ok := reservedColumns[f.Name]; ok {
			return fmt.Errorf("schema: field name %q is reserved", f.Name)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Kind {
		case KindText, KindPhone, KindDigits:
		default:
			return fmt.Errorf("schema: field %q has unknown kind %q", f.Name, f.Kind)
		}
		if f.MaxLength < 0 {
			return fmt.Errorf("schema: field %q has negative max_length", f.Name)
		}
	}
	return nil
}

// FieldNames lists the field names in form order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Normalize trims every schema value and drops keys the schema does not know.
func (s Schema) Normalize(values map[string]string) map[string]string {
	out := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = strings.TrimSpace(values[f.Name])
	}
	return out
}

// Validate checks presence of every field first, then per-kind format rules.
func (s Schema) Validate(values map[string]string) error {
	for _, f := range s.Fields {
		if strings.TrimSpace(values[f.Name]) == "" {
			return &ValidationError{Field: f.Name, Label: f.Label, Reason: ReasonMissing}
		}
	}
	for _, f := range s.Fields {
		v := strings.TrimSpace(values[f.Name])
		switch f.Kind {
		case KindPhone:
			if len(v) != PhoneDigits || !asciiDigits(v) {
				return &ValidationError{Field: f.Name, Label: f.Label, Reason: ReasonPhone}
			}
		case KindDigits:
			if !asciiDigits(v) {
				return &ValidationError{Field: f.Name, Label: f.Label, Reason: ReasonDigits}
			}
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(v) > f.MaxLength {
			return &ValidationError{Field: f.Name, Label: f.Label, Reason: ReasonTooLong}
		}
	}
	return nil
}

func asciiDigits(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}
