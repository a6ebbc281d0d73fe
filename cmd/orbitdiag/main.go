// Command orbitdiag compares the globe's circular orbit model against SGP4
// for the element sets in a TLE or OMM file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/logging"
	"github.com/star/orbitview/internal/orbit"
	"github.com/star/orbitview/internal/propagation"
)

func main() {
	file := flag.String("file", "", "TLE or OMM JSON file to compare (required)")
	span := flag.Duration("span", propagation.DefaultCompareSpan, "comparison window")
	step := flag.Duration("step", propagation.DefaultCompareStep, "sample spacing")
	start := flag.String("start", "", "window start, RFC 3339 (default now)")
	limit := flag.Int("limit", 20, "maximum rows printed, 0 for all")
	verbose := flag.Bool("v", false, "log parser warnings to stderr")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := logging.Discard()
	if *verbose {
		logger = logging.New(logging.Config{Level: "debug", Format: "text"}, os.Stderr)
	}

	at := time.Now().UTC()
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -start: %v\n", err)
			os.Exit(2)
		}
		at = t.UTC()
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR reading element file:", err)
		os.Exit(1)
	}
	sets, err := elements.Parse(data, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR parsing element file:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d element sets from %s\n", len(sets), *file)

	ds := &elements.Dataset{Group: "file", Source: *file, FetchedAt: at, Sets: sets}
	cmp := propagation.NewComparator(
		propagation.NewWorkerPool(propagation.Config{}, logger),
		propagation.ComparatorConfig{
			Body:          orbit.Earth,
			DisplayRadius: 5,
			SpeedConstant: orbit.DefaultSpeedConstant,
			Step:          *step,
			Span:          *span,
		},
		logger,
	)

	reports, failed, err := cmp.CompareDataset(context.Background(), ds, at)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR comparing:", err)
		os.Exit(1)
	}

	fmt.Printf("Window: %s for %s, step %s\n", at.Format(time.RFC3339), *span, *step)
	writeReport(os.Stdout, reports, failed, *limit)
}

// writeReport prints one row per compared object followed by a summary.
func writeReport(w io.Writer, reports []propagation.Report, failed, limit int) {
	rows := reports
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NORAD", "NAME", "MODEL KM", "SGP4 MIN", "SGP4 MAX", "ERROR KM", "KEPLER", "HEURISTIC")
	for _, r := range rows {
		t.Row(
			fmt.Sprintf("%d", r.CatalogID),
			r.Name,
			fmt.Sprintf("%.1f", r.ModelAltitudeKm),
			fmt.Sprintf("%.1f", r.MinAltitudeKm),
			fmt.Sprintf("%.1f", r.MaxAltitudeKm),
			fmt.Sprintf("%+.1f", r.AltitudeErrorKm),
			formatPeriod(r.KeplerPeriod),
			formatPeriod(r.HeuristicPeriod),
		)
	}
	fmt.Fprintln(w, t.Render())

	var sumAbs float64
	for _, r := range reports {
		if r.AltitudeErrorKm < 0 {
			sumAbs -= r.AltitudeErrorKm
		} else {
			sumAbs += r.AltitudeErrorKm
		}
	}
	fmt.Fprintf(w, "Compared: %d  Failed: %d", len(reports), failed)
	if len(reports) > 0 {
		fmt.Fprintf(w, "  Mean |error|: %.1f km", sumAbs/float64(len(reports)))
	}
	if len(rows) < len(reports) {
		fmt.Fprintf(w, "  (showing %d)", len(rows))
	}
	fmt.Fprintln(w)
}

func formatPeriod(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
