package eligibility

import (
	"github.com/trial-matching-mcp-server/internal/domain"
)

// PatientIndex maps normalized keys to the condition details that produced them
type PatientIndex struct {
	details map[string][]domain.ConditionDetail
	keys    []string
}

// BuildPatientIndex indexes every condition with a variable name. Details are
// kept per key in order of appearance; duplicates are retained.
func BuildPatientIndex(patient *domain.PatientProfile) *PatientIndex {
	idx := &PatientIndex{details: make(map[string][]domain.ConditionDetail)}
	if patient == nil {
		return idx
	}

	for _, c := range patient.Conditions {
		if c.EntityVariableName == "" {
			continue
		}
		key := Normalize(c.EntityVariableName)
		if _, seen := idx.details[key]; !seen {
			idx.keys = append(idx.keys, key)
		}
		idx.details[key] = append(idx.details[key], domain.DetailFromCondition(c))
	}
	return idx
}

// Has reports whether the patient has a fact under the normalized key.
func (p *PatientIndex) Has(key string) bool {
	_, ok := p.details[key]
	return ok
}

// Details returns the detail records for a key, or nil.
func (p *PatientIndex) Details(key string) []domain.ConditionDetail {
	return p.details[key]
}

// Keys returns the indexed keys in order of first appearance.
func (p *PatientIndex) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len is the number of distinct keys.
func (p *PatientIndex) Len() int {
	return len(p.keys)
}
