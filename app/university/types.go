package university

import (
	"time"
)

// RawRecord is a directory entry as returned by the source API. Every field
// is optional and may carry any JSON type.
type RawRecord map[string]any

// Record is the canonical, validated form of a university entry.
type Record struct {
	Name           string    `json:"name"`
	Country        string    `json:"country"`
	StateProvince  *string   `json:"state_province"`
	AlphaTwoCode   *string   `json:"alpha_two_code"`
	Domains        []string  `json:"domains"`
	WebPages       []string  `json:"web_pages"`
	PrimaryDomain  *string   `json:"primary_domain"`
	PrimaryWebsite *string   `json:"primary_website"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Stats summarizes one normalization pass.
type Stats struct {
	Input             int `json:"input"`
	Accepted          int `json:"accepted"`
	DroppedIncomplete int `json:"dropped_incomplete"`
	DroppedInvalid    int `json:"dropped_invalid"`
}

// Dropped returns the total number of records removed by either filter.
func (s Stats) Dropped() int {
	return s.DroppedIncomplete + s.DroppedInvalid
}

// Raw converts a canonical record back into its raw shape.
func (r Record) Raw() RawRecord {
	raw := RawRecord{
		"name":      r.Name,
		"country":   r.Country,
		"domains":   toAnySlice(r.Domains),
		"web_pages": toAnySlice(r.WebPages),
	}
	if r.StateProvince != nil {
		raw["state_province"] = *r.StateProvince
	}
	if r.AlphaTwoCode != nil {
		raw["alpha_two_code"] = *r.AlphaTwoCode
	}
	return raw
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
