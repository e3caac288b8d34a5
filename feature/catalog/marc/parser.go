// Package marc extracts the bibliographic fields used by reconciliation from
// MARC-in-JSON records.
package marc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"holdings-sync/feature/catalog/models"
)

// Parser turns a raw bibliographic record into structured fields.
type Parser interface {
	Parse(raw []byte) (models.BibFields, error)
}

// JSONParser parses MARC-in-JSON.
type JSONParser struct{}

// Record is a MARC-in-JSON record.
type Record struct {
	Leader string                       `json:"leader"`
	Fields []map[string]json.RawMessage `json:"fields"`
}

// DataField is a variable data field.
type DataField struct {
	Ind1      string              `json:"ind1"`
	Ind2      string              `json:"ind2"`
	Subfields []map[string]string `json:"subfields"`
}

// Subfield returns the first value of the subfield code, if any.
func (d DataField) Subfield(code string) (string, bool) {
	for _, sf := range d.Subfields {
		if v, ok := sf[code]; ok {
			return v, true
		}
	}
	return "", false
}

// DataFields returns every data field with the given tag.
func (r *Record) DataFields(tag string) []DataField {
	var out []DataField
	for _, f := range r.Fields {
		raw, ok := f[tag]
		if !ok {
			continue
		}
		var df DataField
		if err := json.Unmarshal(raw, &df); err == nil {
			out = append(out, df)
		}
	}
	return out
}

// Parse decodes the record and extracts title, format and physical description.
func (JSONParser) Parse(raw []byte) (models.BibFields, error) {
	if len(raw) == 0 {
		return models.BibFields{}, errors.New("empty bibliographic record")
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.BibFields{}, fmt.Errorf("failed to decode MARC JSON: %w", err)
	}

	bib := models.BibFields{Format: Format(rec.Leader)}

	if fields := rec.DataFields("245"); len(fields) > 0 {
		bib.Title = joinSubfields(fields[0], "a", "b")
	}

	var desc []string
	for _, f := range rec.DataFields("300") {
		if d := joinSubfields(f, "a", "b", "c", "e"); d != "" {
			desc = append(desc, d)
		}
		if _, ok := f.Subfield("e"); ok {
			bib.HasSupplement = true
		}
	}
	bib.PhysicalDescription = strings.Join(desc, "; ")

	return bib, nil
}

func joinSubfields(f DataField, codes ...string) string {
	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}
	var parts []string
	for _, sf := range f.Subfields {
		for code, v := range sf {
			if wanted[code] {
				if v = strings.TrimSpace(v); v != "" {
					parts = append(parts, v)
				}
			}
		}
	}
	return strings.TrimRight(strings.Join(parts, " "), " /:;,.")
}

// Format derives a display format from the leader's record type and bibliographic level.
func Format(leader string) string {
	if len(leader) < 8 {
		return ""
	}
	typ, level := leader[6], leader[7]
	switch typ {
	case 'a', 't':
		switch level {
		case 's', 'b':
			return "Journal/Periodical"
		case 'i':
			return "Website"
		}
		if typ == 't' {
			return "Manuscript/Archive"
		}
		return "Book"
	case 'c', 'd':
		return "Musical Score"
	case 'e', 'f':
		return "Map"
	case 'g':
		return "Video"
	case 'i':
		return "Non-musical Recording"
	case 'j':
		return "Musical Recording"
	case 'k':
		return "Image"
	case 'm':
		return "Computer File"
	case 'p':
		return "Manuscript/Archive"
	case 'r':
		return "Object"
	}
	return "Miscellaneous"
}
