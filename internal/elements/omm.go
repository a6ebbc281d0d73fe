package elements

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// ommEpochLayouts are the EPOCH formats seen in Celestrak OMM JSON.
var ommEpochLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02T15:04:05",
}

type ommRecord struct {
	ElementSet
	EpochText string `json:"EPOCH"`
}

// ParseOMM reads a Celestrak OMM JSON array (FORMAT=json). Records with an
// unparseable epoch are kept with a zero epoch and a warning; orbital
// validity is left to the orbit model.
func ParseOMM(r io.Reader, logger *slog.Logger) ([]ElementSet, error) {
	var records []ommRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding OMM JSON: %w", err)
	}

	sets := make([]ElementSet, 0, len(records))
	for _, rec := range records {
		set := rec.ElementSet
		set.Name = strings.TrimSpace(set.Name)
		if rec.EpochText != "" {
			epoch, err := parseOMMEpoch(rec.EpochText)
			if err != nil {
				logger.Warn("OMM record with invalid epoch",
					"catalog_id", set.CatalogID,
					"name", set.Name,
					"epoch", rec.EpochText,
				)
			} else {
				set.Epoch = epoch
			}
		}
		sets = append(sets, set)
	}

	return sets, nil
}

func parseOMMEpoch(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range ommEpochLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Parse detects the payload format and parses it: a leading '[' is OMM JSON,
// anything else is 3-line TLE text.
func Parse(data []byte, logger *slog.Logger) ([]ElementSet, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return ParseOMM(strings.NewReader(trimmed), logger)
	}
	return ParseTLE(strings.NewReader(trimmed), logger)
}
