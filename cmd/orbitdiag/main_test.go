package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/star/orbitview/internal/propagation"
)

func TestWriteReport(t *testing.T) {
	reports := []propagation.Report{
		{CatalogID: 25544, Name: "ISS (ZARYA)", ModelAltitudeKm: 421.2, MinAltitudeKm: 410, MaxAltitudeKm: 425, AltitudeErrorKm: 3.5, KeplerPeriod: 92*time.Minute + 40*time.Second, HeuristicPeriod: 30 * time.Second},
		{CatalogID: 48274, Name: "CSS (TIANHE)", ModelAltitudeKm: 380, AltitudeErrorKm: -4.5},
	}

	var buf bytes.Buffer
	writeReport(&buf, reports, 1, 0)
	out := buf.String()

	for _, want := range []string{"25544", "ISS (ZARYA)", "+3.5", "-4.5", "1h32m40s", "Compared: 2  Failed: 1", "Mean |error|: 4.0 km"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "showing") {
		t.Errorf("unexpected truncation note:\n%s", out)
	}
}

func TestWriteReportLimit(t *testing.T) {
	reports := []propagation.Report{{CatalogID: 1, Name: "A"}, {CatalogID: 2, Name: "B"}, {CatalogID: 3, Name: "CHARLIE"}}

	var buf bytes.Buffer
	writeReport(&buf, reports, 0, 2)
	out := buf.String()

	if strings.Contains(out, "CHARLIE") {
		t.Errorf("row beyond limit printed:\n%s", out)
	}
	if !strings.Contains(out, "(showing 2)") {
		t.Errorf("missing truncation note:\n%s", out)
	}
}

func TestFormatPeriod(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{-time.Second, "-"},
		{90*time.Second + 400*time.Millisecond, "1m30s"},
	}
	for _, tt := range tests {
		if got := formatPeriod(tt.in); got != tt.want {
			t.Errorf("formatPeriod(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
