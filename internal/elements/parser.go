package elements

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// tleLineLen is the fixed width of a TLE line.
const tleLineLen = 69

// ParseTLE reads 3-line NORAD TLE format from r and returns parsed element
// sets. Malformed entries are skipped with a warning log.
func ParseTLE(r io.Reader, logger *slog.Logger) ([]ElementSet, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var sets []ElementSet
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		// Validate line prefixes.
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Try to find next valid triplet.
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}

		set, err := parseTriplet(name, line1, line2)
		if err != nil {
			logger.Warn("skipping invalid TLE entry", "name", strings.TrimSpace(name), "error", err)
			i += 3
			continue
		}

		sets = append(sets, set)
		i += 3
	}

	return sets, nil
}

// parseTriplet decodes the fixed-column fields of one TLE.
func parseTriplet(name, line1, line2 string) (ElementSet, error) {
	if len(line1) < tleLineLen {
		return ElementSet{}, fmt.Errorf("line1 length %d, expected %d", len(line1), tleLineLen)
	}
	if len(line2) < tleLineLen-6 {
		return ElementSet{}, fmt.Errorf("line2 length %d, expected %d", len(line2), tleLineLen)
	}

	// NORAD ID from line1 cols 3-7 (0-indexed: 2..7).
	catalogID, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return ElementSet{}, fmt.Errorf("invalid catalog number %q", line1[2:7])
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return ElementSet{}, err
	}

	set := ElementSet{
		CatalogID:      catalogID,
		ObjectID:       strings.TrimSpace(line1[9:17]),
		Name:           strings.TrimSpace(name),
		Epoch:          epoch,
		Classification: strings.TrimSpace(line1[7:8]),
		Line1:          line1,
		Line2:          line2,
	}

	// Bookkeeping fields are best effort; the orbital fields are required.
	set.MeanMotionDot, _ = strconv.ParseFloat(strings.TrimSpace(line1[33:43]), 64)
	set.MeanMotionDDot, _ = parseImpliedExponent(line1[44:52])
	set.BStar, _ = parseImpliedExponent(line1[53:61])
	set.ElementSetNo, _ = strconv.Atoi(strings.TrimSpace(line1[64:68]))

	fields := []struct {
		name     string
		from, to int
		dst      *float64
	}{
		{"inclination", 8, 16, &set.Inclination},
		{"raan", 17, 25, &set.RAAN},
		{"arg_perigee", 34, 42, &set.ArgPerigee},
		{"mean_anomaly", 43, 51, &set.MeanAnomaly},
		{"mean_motion", 52, 63, &set.MeanMotion},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(line2[f.from:f.to]), 64)
		if err != nil {
			return ElementSet{}, fmt.Errorf("invalid %s %q", f.name, line2[f.from:f.to])
		}
		*f.dst = v
	}

	// Eccentricity has an implied leading decimal point.
	ecc, err := strconv.ParseFloat("0."+strings.TrimSpace(line2[26:33]), 64)
	if err != nil {
		return ElementSet{}, fmt.Errorf("invalid eccentricity %q", line2[26:33])
	}
	set.Eccentricity = ecc

	if len(line2) >= 68 {
		set.RevAtEpoch, _ = strconv.Atoi(strings.TrimSpace(line2[63:68]))
	}

	return set, nil
}

// parseImpliedExponent decodes the TLE " 12345-3" notation, meaning 0.12345e-3.
func parseImpliedExponent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	sign := ""
	if s[0] == '-' || s[0] == '+' {
		if s[0] == '-' {
			sign = "-"
		}
		s = s[1:]
	}

	cut := strings.LastIndexAny(s, "+-")
	if cut <= 0 {
		return strconv.ParseFloat(sign+"0."+s, 64)
	}
	return strconv.ParseFloat(sign+"0."+s[:cut]+"e"+s[cut:], 64)
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	dur := time.Duration((dayOfYear - 1) * float64(24*time.Hour))

	return t.Add(dur), nil
}
