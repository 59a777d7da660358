package domain

import (
	"encoding/json"
	"strconv"
)

// Condition is a single extracted medical fact attached to a patient
type Condition struct {
	ConceptID          string `json:"conceptId"`
	PreferredTerm      string `json:"preferred_term"`
	EntityVariableName string `json:"entity_variable_name"`
	SpanMatch          string `json:"span_match"`
	FactID             string `json:"fact_id,omitempty"`

	// ExtractedValue is the literal captured value (a number for ages, a bool
	// for sex flags). HasExtractedValue distinguishes a recorded null from an
	// absent key.
	ExtractedValue    any  `json:"-"`
	HasExtractedValue bool `json:"-"`

	Type    string `json:"-"`
	HasType bool   `json:"-"`
}

// UnmarshalJSON decodes a condition leniently: fields with unexpected types are
// treated as absent instead of failing the whole profile.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not an object: leave the condition empty so it is skipped.
		*c = Condition{}
		return nil
	}

	*c = Condition{
		ConceptID:          looseString(raw["conceptId"]),
		PreferredTerm:      looseString(raw["preferred_term"]),
		EntityVariableName: looseString(raw["entity_variable_name"]),
		SpanMatch:          looseString(raw["span_match"]),
		FactID:             looseString(raw["fact_id"]),
	}

	if v, ok := raw["extracted_value"]; ok {
		var value any
		if err := json.Unmarshal(v, &value); err == nil {
			c.ExtractedValue = value
			c.HasExtractedValue = true
		}
	}
	if v, ok := raw["type"]; ok {
		c.Type = looseString(v)
		c.HasType = true
	}
	return nil
}

// MarshalJSON emits extracted_value and type only when the source carried them.
func (c Condition) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"conceptId":            c.ConceptID,
		"preferred_term":       c.PreferredTerm,
		"entity_variable_name": c.EntityVariableName,
		"span_match":           c.SpanMatch,
	}
	if c.FactID != "" {
		out["fact_id"] = c.FactID
	}
	if c.HasExtractedValue {
		out["extracted_value"] = c.ExtractedValue
	}
	if c.HasType {
		out["type"] = c.Type
	}
	return json.Marshal(out)
}

// PatientNote is the free-text note a profile was extracted from
type PatientNote struct {
	Text   string `json:"text"`
	NoteID string `json:"note_id,omitempty"`
}

// PatientProfile is the structured record of one patient
type PatientProfile struct {
	PatientID   string       `json:"patient_id"`
	PatientNote *PatientNote `json:"patient_note,omitempty"`
	Conditions  []Condition  `json:"conditions"`
}

// UnmarshalJSON tolerates a missing or mistyped conditions list.
func (p *PatientProfile) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = PatientProfile{PatientID: looseString(raw["patient_id"])}

	if v, ok := raw["patient_note"]; ok {
		var note struct {
			Text   json.RawMessage `json:"text"`
			NoteID json.RawMessage `json:"note_id"`
		}
		if err := json.Unmarshal(v, &note); err == nil && string(v) != "null" {
			p.PatientNote = &PatientNote{
				Text:   looseString(note.Text),
				NoteID: looseString(note.NoteID),
			}
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw["conditions"], &items); err == nil {
		p.Conditions = make([]Condition, 0, len(items))
		for _, item := range items {
			var c Condition
			_ = c.UnmarshalJSON(item)
			p.Conditions = append(p.Conditions, c)
		}
	}
	return nil
}

// NoteText returns the patient note text or an empty string.
func (p *PatientProfile) NoteText() string {
	if p == nil || p.PatientNote == nil {
		return ""
	}
	return p.PatientNote.Text
}

// looseString reads a JSON string or number; anything else is empty.
func looseString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

// looseStrings reads a JSON array keeping only its string elements. A null
// element decodes into a string without error, so it is dropped explicitly.
func looseStrings(v json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s *string
		if err := json.Unmarshal(item, &s); err == nil && s != nil {
			out = append(out, *s)
		}
	}
	return out
}
