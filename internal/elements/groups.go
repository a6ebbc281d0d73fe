package elements

import "slices"

// DefaultGroup is the group loaded when none is requested.
const DefaultGroup = "stations"

// knownGroups are the Celestrak GROUP values offered in the satellite menu.
var knownGroups = []string{
	"stations",
	"visual",
	"active",
	"starlink",
	"oneweb",
	"globalstar",
	"intelsat",
	"iridium-NEXT",
	"orbcomm",
	"weather",
	"noaa",
	"goes",
	"gps-ops",
	"glo-ops",
	"galileo",
	"beidou",
	"amateur",
	"cubesat",
	"science",
	"geo",
	"tle-new",
}

// KnownGroups returns the supported group names.
func KnownGroups() []string {
	return slices.Clone(knownGroups)
}

// IsKnownGroup reports whether group is a supported Celestrak group.
func IsKnownGroup(group string) bool {
	return slices.Contains(knownGroups, group)
}
