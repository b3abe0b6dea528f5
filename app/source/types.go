package source

import (
	"github.com/lysyi3m/uni-comb/app/university"
)

// DefaultCountries is the country list fetched when none is configured.
var DefaultCountries = []string{
	"United States",
	"United Kingdom",
	"Canada",
	"Australia",
	"Germany",
	"France",
	"Japan",
	"India",
}

// CountryOutcome records how a single country request settled.
type CountryOutcome struct {
	Country string `json:"country"`
	OK      bool   `json:"ok"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

// Result is the combined output of one fan-out.
type Result struct {
	Records   []university.RawRecord
	Countries []CountryOutcome
}

// Failed returns the number of countries whose request was not accepted.
func (r *Result) Failed() int {
	failed := 0
	for _, c := range r.Countries {
		if !c.OK {
			failed++
		}
	}
	return failed
}
