package university

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Source field names. The public directory spells the region key with a
// hyphen, so both spellings are read.
const (
	fieldName          = "name"
	fieldCountry       = "country"
	fieldStateProvince = "state_province"
	fieldStateHyphen   = "state-province"
	fieldAlphaTwoCode  = "alpha_two_code"
	fieldDomains       = "domains"
	fieldWebPages      = "web_pages"
)

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Run maps raw records onto the canonical schema. Output order follows input
// order; records are never merged or deduplicated. now is stamped as
// LastUpdated on every record.
func (n *Normalizer) Run(raw []RawRecord, now time.Time) ([]Record, Stats) {
	stats := Stats{Input: len(raw)}
	records := make([]Record, 0, len(raw))

	for _, r := range raw {
		if !n.isComplete(r) {
			stats.DroppedIncomplete++
			continue
		}

		record := n.build(r, now)
		if !n.isValid(record) {
			stats.DroppedInvalid++
			continue
		}

		records = append(records, record)
	}

	stats.Accepted = len(records)

	slog.Debug("Normalization completed",
		"input", stats.Input,
		"accepted", stats.Accepted,
		"dropped_incomplete", stats.DroppedIncomplete,
		"dropped_invalid", stats.DroppedInvalid)

	return records, stats
}

func (n *Normalizer) isComplete(r RawRecord) bool {
	if r == nil {
		return false
	}
	if !truthy(r[fieldName]) || !truthy(r[fieldCountry]) {
		return false
	}
	pages, ok := asSlice(r[fieldWebPages])
	return ok && len(pages) > 0
}

func (n *Normalizer) isValid(record Record) bool {
	return record.Name != "" && record.Country != "" && len(record.WebPages) > 0
}

func (n *Normalizer) build(r RawRecord, now time.Time) Record {
	state := r[fieldStateProvince]
	if !truthy(state) {
		state = r[fieldStateHyphen]
	}

	record := Record{
		Name:          toTrimmedString(r[fieldName]),
		Country:       toTrimmedString(r[fieldCountry]),
		StateProvince: optionalString(state),
		AlphaTwoCode:  optionalString(r[fieldAlphaTwoCode]),
		Domains:       toStringSlice(r[fieldDomains]),
		WebPages:      toStringSlice(r[fieldWebPages]),
		LastUpdated:   now,
	}

	if len(record.Domains) > 0 {
		domain := record.Domains[0]
		record.PrimaryDomain = &domain
	}
	if len(record.WebPages) > 0 {
		website := record.WebPages[0]
		record.PrimaryWebsite = &website
	}

	return record
}

// truthy reports whether v counts as present: nil, empty strings, zero
// numbers and false are absent.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case json.Number:
		return val.String() != "" && val.String() != "0"
	default:
		return true
	}
}

func toTrimmedString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case []any:
		parts := make([]string, len(val))
		for i, part := range val {
			parts[i] = toTrimmedString(part)
		}
		return strings.Join(parts, ",")
	case []string:
		return toTrimmedString(toAnySlice(val))
	case map[string]any:
		// Objects carry no usable text.
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func optionalString(v any) *string {
	if !truthy(v) {
		return nil
	}
	s := toTrimmedString(v)
	return &s
}

func asSlice(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		return toAnySlice(val), true
	default:
		return nil, false
	}
}

// toStringSlice never returns nil. Non-sequence input yields an empty slice;
// nil and blank elements are skipped.
func toStringSlice(v any) []string {
	values, _ := asSlice(v)
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == nil {
			continue
		}
		s := toTrimmedString(value)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
