package staging

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/lysyi3m/uni-comb/app/university"
)

// CSVHeader is the fixed column order of the tabular artifact.
var CSVHeader = []string{
	"name",
	"country",
	"state_province",
	"alpha_two_code",
	"primary_domain",
	"primary_website",
	"last_updated",
}

// WriteCSV renders records as the flat projection. Absent optional fields
// become empty cells.
func WriteCSV(w io.Writer, records []university.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			r.Name,
			r.Country,
			deref(r.StateProvince),
			deref(r.AlphaTwoCode),
			deref(r.PrimaryDomain),
			deref(r.PrimaryWebsite),
			r.LastUpdated.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
