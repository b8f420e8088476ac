// Package usage models the on-disk per-user usage record. Unknown fields in
// the file are preserved across rewrites.
package usage

import (
	"encoding/json"
	"time"
)

// DateLayout is the on-disk date format for usage timestamps.
const DateLayout = "2006-01-02"

// Record is the flat user.json object. Extra holds every field the current
// build does not model, so older and newer writers can share the file.
type Record struct {
	StaticUserID      string `json:"static_user_id"`
	UserEmail         string `json:"user_email"`
	Pro               bool   `json:"mitosheet_pro"`
	Enterprise        bool   `json:"mitosheet_enterprise"`
	TelemetryEnabled  bool   `json:"mitosheet_telemetry"`
	ChatCompletions   int    `json:"ai_mito_api_num_usages"`
	AutocompleteCalls int    `json:"ai_mito_autocomplete_num_usages"`
	FirstUsageDate    string `json:"mito_ai_first_usage_date"`
	LastResetDate     string `json:"mito_ai_last_reset_date"`

	Extra map[string]json.RawMessage `json:"-"`
}

// NewRecord returns a record with first-use defaults.
func NewRecord(userID string, now time.Time) *Record {
	today := now.Format(DateLayout)
	return &Record{
		StaticUserID:     userID,
		TelemetryEnabled: true,
		FirstUsageDate:   today,
		LastResetDate:    today,
		Extra:            map[string]json.RawMessage{},
	}
}

// knownKeys are the JSON keys owned by Record itself.
var knownKeys = map[string]struct{}{
	"static_user_id":                  {},
	"user_email":                      {},
	"mitosheet_pro":                   {},
	"mitosheet_enterprise":            {},
	"mitosheet_telemetry":             {},
	"ai_mito_api_num_usages":          {},
	"ai_mito_autocomplete_num_usages": {},
	"mito_ai_first_usage_date":        {},
	"mito_ai_last_reset_date":         {},
}

// UnmarshalJSON decodes known fields and stashes everything else in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	p.Extra = map[string]json.RawMessage{}
	for k, v := range all {
		if _, known := knownKeys[k]; !known {
			p.Extra[k] = v
		}
	}
	*r = Record(p)
	return nil
}

// MarshalJSON emits known fields merged with the preserved extras.
func (r *Record) MarshalJSON() ([]byte, error) {
	type plain Record
	known, err := json.Marshal((*plain)(r))
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, owned := knownKeys[k]; !owned {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// ResetDue reports whether the 30-day counter window has elapsed.
func (r *Record) ResetDue(now time.Time) bool {
	last, err := time.Parse(DateLayout, r.LastResetDate)
	if err != nil {
		return true
	}
	return now.Sub(last) >= 30*24*time.Hour
}

// Reset zeroes both counters and stamps the reset date.
func (r *Record) Reset(now time.Time) {
	r.ChatCompletions = 0
	r.AutocompleteCalls = 0
	r.LastResetDate = now.Format(DateLayout)
}
