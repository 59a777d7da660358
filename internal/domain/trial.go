package domain

import "encoding/json"

// TrialInfo describes a clinical trial independently of its criteria
type TrialInfo struct {
	TrialID       string   `json:"trial_id"`
	Title         string   `json:"title"`
	BriefSummary  string   `json:"brief_summary,omitempty"`
	Phase         string   `json:"phase,omitempty"`
	Drugs         []string `json:"drugs,omitempty"`
	Diseases      []string `json:"diseases,omitempty"`
	Interventions []string `json:"interventions,omitempty"`
	Enrollment    string   `json:"enrollment,omitempty"`
}

// TrialProfile is a trial together with its raw criterion identifiers
type TrialProfile struct {
	PatientID         string     `json:"patient_id,omitempty"`
	RankFolder        string     `json:"rank_folder,omitempty"`
	TrialInfo         *TrialInfo `json:"trial_info,omitempty"`
	InclusionCriteria []string   `json:"inclusion_criteria"`
	ExclusionCriteria []string   `json:"exclusion_criteria"`

	// FileName is set by loaders, never decoded.
	FileName string `json:"-"`
}

// UnmarshalJSON keeps only string criteria and treats missing lists as empty.
func (t *TrialProfile) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*t = TrialProfile{
		PatientID:         looseString(raw["patient_id"]),
		RankFolder:        looseString(raw["rank_folder"]),
		InclusionCriteria: looseStrings(raw["inclusion_criteria"]),
		ExclusionCriteria: looseStrings(raw["exclusion_criteria"]),
	}

	if v, ok := raw["trial_info"]; ok {
		var info map[string]json.RawMessage
		if err := json.Unmarshal(v, &info); err == nil && info != nil {
			t.TrialInfo = &TrialInfo{
				TrialID:       looseString(info["trial_id"]),
				Title:         looseString(info["title"]),
				BriefSummary:  looseString(info["brief_summary"]),
				Phase:         looseString(info["phase"]),
				Drugs:         looseStrings(info["drugs"]),
				Diseases:      looseStrings(info["diseases"]),
				Interventions: looseStrings(info["interventions"]),
				Enrollment:    looseString(info["enrollment"]),
			}
		}
	}
	return nil
}

// Info returns the trial info, never nil.
func (t *TrialProfile) Info() TrialInfo {
	if t == nil || t.TrialInfo == nil {
		return TrialInfo{}
	}
	return *t.TrialInfo
}

// ID returns the trial id, falling back to the rank folder and file name.
func (t *TrialProfile) ID() string {
	if t == nil {
		return ""
	}
	if t.TrialInfo != nil && t.TrialInfo.TrialID != "" {
		return t.TrialInfo.TrialID
	}
	if t.RankFolder != "" {
		return t.RankFolder
	}
	return t.FileName
}
