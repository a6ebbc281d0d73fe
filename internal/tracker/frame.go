package tracker

import (
	"time"

	"github.com/star/orbitview/internal/orbit"
)

// FrameState is the animation state of one view: the current parameters of
// every object and their positions after the last tick. It is owned by a
// single goroutine and passed explicitly to Tick; it is never shared.
type FrameState struct {
	Group         string
	Version       time.Time // FetchedAt of the view the frame was built from
	DisplayRadius float64

	// Params[i] and Positions[i] belong to View.Objects[i].
	Params    []orbit.Parameters
	Positions []orbit.Position3D

	Seq        uint64
	SimSeconds float64

	view *GroupView
}

// View returns the group view the frame animates.
func (st *FrameState) View() *GroupView {
	return st.view
}

// Stale reports whether v is newer than the view the frame was built from.
func (st *FrameState) Stale(v *GroupView) bool {
	return v.Group != st.Group || !v.FetchedAt.Equal(st.Version)
}
