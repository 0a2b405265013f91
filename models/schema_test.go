package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validAddress() map[string]string {
	return map[string]string{
		"calle":            "Av. Juárez",
		"numero":           "12",
		"colonia":          "Centro",
		"cp":               "06000",
		"ciudad":           "CDMX",
		"nombre":           "Ana",
		"apellido_paterno": "López",
		"apellido_materno": "Díaz",
		"seccion":          "0101",
		"celular":          "5512345678",
	}
}

func TestValidateAcceptsCompleteRecord(t *testing.T) {
	if err := AddressSchema.Validate(validAddress()); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
}

func TestValidateMissingField(t *testing.T) {
	for _, name := range AddressSchema.FieldNames() {
		values := validAddress()
		values[name] = "   "
		err := AddressSchema.Validate(values)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
		if verr.Field != name || verr.Reason != ReasonMissing {
			t.Fatalf("%s: unexpected error %+v", name, verr)
		}
	}
}

func TestValidateMissingBeforeFormat(t *testing.T) {
	values := validAddress()
	values["celular"] = "12"
	delete(values, "calle")
	var verr *ValidationError
	if err := AddressSchema.Validate(values); !errors.As(err, &verr) || verr.Reason != ReasonMissing {
		t.Fatalf("expected missing error first, got %v", err)
	}
}

func TestValidatePhone(t *testing.T) {
	for _, phone := range []string{"12345", "55123456789", "55-1234567", "551234567a", "５５１２３４５６７８"} {
		values := validAddress()
		values["celular"] = phone
		var verr *ValidationError
		if err := AddressSchema.Validate(values); !errors.As(err, &verr) || verr.Reason != ReasonPhone {
			t.Fatalf("phone %q: expected phone error, got %v", phone, err)
		}
	}
}

func TestValidateDigitsAndLength(t *testing.T) {
	values := map[string]string{
		"nombre":    "Luis",
		"seccion":   "12",
		"telefono":  "5512345678",
		"direccion": "Calle 1",
		"edad":      "3a",
	}
	var verr *ValidationError
	if err := DemographicSchema.Validate(values); !errors.As(err, &verr) || verr.Reason != ReasonDigits {
		t.Fatalf("expected digits error, got %v", err)
	}
	values["edad"] = "1234"
	if err := DemographicSchema.Validate(values); !errors.As(err, &verr) || verr.Reason != ReasonTooLong {
		t.Fatalf("expected length error, got %v", err)
	}
	values["edad"] = "34"
	if err := DemographicSchema.Validate(values); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
}

func TestNormalizeTrimsAndDropsUnknown(t *testing.T) {
	values := validAddress()
	values["calle"] = "  Reforma "
	values["extra"] = "x"
	out := AddressSchema.Normalize(values)
	if out["calle"] != "Reforma" {
		t.Fatalf("expected trimmed value, got %q", out["calle"])
	}
	if _, ok := out["extra"]; ok {
		t.Fatalf("unknown key should be dropped")
	}
}

const sampleSchema = `name: contacts
table: Contactos
fields:
  - name: nombre
  - name: telefono
    label: Teléfono
    kind: phone
`

func TestParseSchemaYAML(t *testing.T) {
	s, err := ParseSchemaYAML([]byte(sampleSchema))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Table != "contactos" || len(s.Fields) != 2 {
		t.Fatalf("unexpected schema: %+v", s)
	}
	if s.Fields[0].Kind != KindText || s.Fields[0].Label != "nombre" {
		t.Fatalf("expected defaults on first field: %+v", s.Fields[0])
	}
}

func TestParseSchemaYAMLErrors(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"reserved": "table: t\nfields:\n  - name: owner\n",
		"dup":      "table: t\nfields:\n  - name: a\n  - name: a\n",
		"kind":     "table: t\nfields:\n  - name: a\n    kind: email\n",
		"table":    "table: \"drop table\"\nfields:\n  - name: a\n",
		"nofields": "table: t\n",
	}
	for name, doc := range cases {
		if _, err := ParseSchemaYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(sampleSchema), 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	s, err := LoadSchemaFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Name != "contacts" {
		t.Fatalf("unexpected name %q", s.Name)
	}
	if _, err := LoadSchemaFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestBuiltinSchema(t *testing.T) {
	if s, ok := BuiltinSchema(""); !ok || s.Name != "address" {
		t.Fatalf("expected address default")
	}
	if s, ok := BuiltinSchema("Demographic"); !ok || s.Table != "registros" {
		t.Fatalf("expected demographic schema")
	}
	if _, ok := BuiltinSchema("other"); ok {
		t.Fatalf("unknown schema should not resolve")
	}
	for _, s := range []Schema{AddressSchema, DemographicSchema} {
		if err := s.Check(); err != nil {
			t.Fatalf("builtin %s invalid: %v", s.Name, err)
		}
	}
}

func TestCoordinates(t *testing.T) {
	c := Coordinates{Latitude: 19.4326, Longitude: -99.1332}
	if !c.Valid() {
		t.Fatalf("expected valid coordinates")
	}
	if got := c.MapURL(); got != "https://www.google.com/maps?q=19.432600,-99.133200" {
		t.Fatalf("unexpected map url %q", got)
	}
	if (Coordinates{Latitude: 91}).Valid() || (Coordinates{Longitude: -181}).Valid() {
		t.Fatalf("out of range coordinates should be invalid")
	}
	if (Record{}).MapURL() != "" {
		t.Fatalf("record without location should have no map url")
	}
}
