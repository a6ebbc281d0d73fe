package elements

import (
	"fmt"
	"math"
)

// TLELines returns the set as two TLE lines. Sets parsed from TLE text return
// their original lines; sets from OMM JSON are formatted from their fields.
func (e ElementSet) TLELines() (line1, line2 string) {
	if e.HasTLE() {
		return e.Line1, e.Line2
	}

	class := e.Classification
	if class == "" {
		class = "U"
	}

	l1 := fmt.Sprintf("1 %05d%1.1s %-8.8s %s %s %s %s %1d %4d",
		e.CatalogID%100000,
		class,
		designator(e.ObjectID),
		formatEpoch(e),
		formatMeanMotionDot(e.MeanMotionDot),
		formatImpliedExponent(e.MeanMotionDDot),
		formatImpliedExponent(e.BStar),
		e.EphemerisType%10,
		e.ElementSetNo%10000,
	)
	l2 := fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		e.CatalogID%100000,
		e.Inclination,
		e.RAAN,
		int(math.Round(e.Eccentricity*1e7)),
		e.ArgPerigee,
		e.MeanAnomaly,
		e.MeanMotion,
		e.RevAtEpoch%100000,
	)
	return l1 + checksum(l1), l2 + checksum(l2)
}

// designator converts an OMM OBJECT_ID such as 1998-067A to the TLE form
// 98067A.
func designator(objectID string) string {
	if len(objectID) > 5 && objectID[4] == '-' {
		return objectID[2:4] + objectID[5:]
	}
	return objectID
}

func formatEpoch(e ElementSet) string {
	t := e.Epoch.UTC()
	frac := float64(t.Hour()*3600+t.Minute()*60+t.Second())/86400 +
		float64(t.Nanosecond())/86400e9
	return fmt.Sprintf("%02d%012.8f", t.Year()%100, float64(t.YearDay())+frac)
}

// formatMeanMotionDot renders the first derivative as " .00016717".
func formatMeanMotionDot(v float64) string {
	sign := " "
	if v < 0 {
		sign = "-"
		v = -v
	}
	n := int(math.Round(v * 1e8))
	if n > 99999999 {
		n = 99999999
	}
	return fmt.Sprintf("%s.%08d", sign, n)
}

// formatImpliedExponent renders v in the " 12345-3" notation read by
// parseImpliedExponent.
func formatImpliedExponent(v float64) string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return " 00000-0"
	}
	sign := " "
	if v < 0 {
		sign = "-"
		v = -v
	}

	exp := int(math.Floor(math.Log10(v))) + 1
	mant := int(math.Round(v / math.Pow(10, float64(exp)) * 1e5))
	if mant >= 100000 {
		mant /= 10
		exp++
	}
	if exp < -9 {
		return " 00000-0"
	}
	if exp > 9 {
		exp, mant = 9, 99999
	}

	expSign := "-"
	if exp >= 0 {
		expSign = "+"
	}
	if exp < 0 {
		exp = -exp
	}
	return fmt.Sprintf("%s%05d%s%d", sign, mant, expSign, exp)
}

// checksum is the TLE modulo-10 check digit: digits count their value and
// each minus sign counts one.
func checksum(line string) string {
	sum := 0
	for _, r := range line {
		switch {
		case r >= '0' && r <= '9':
			sum += int(r - '0')
		case r == '-':
			sum++
		}
	}
	return string(rune('0' + sum%10))
}
