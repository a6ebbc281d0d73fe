// Package tui renders the animated globe in a terminal using Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/star/orbitview/internal/orbit"
	"github.com/star/orbitview/internal/tracker"
)

// Source supplies group views, frames, paths and markers.
type Source interface {
	View(ctx context.Context, group string) (*tracker.GroupView, error)
	NewFrame(v *tracker.GroupView, displayRadius float64) (*tracker.FrameState, error)
	Tick(ctx context.Context, st *tracker.FrameState, dt float64) error
	Rebase(ctx context.Context, prev *tracker.FrameState, v *tracker.GroupView) (*tracker.FrameState, error)
	OrbitPath(v *tracker.GroupView, catalogID, segments int, displayRadius float64) (orbit.Path, error)
	Markers() []tracker.Marker
}

const (
	tickInterval   = 50 * time.Millisecond
	reloadInterval = time.Minute
	rotateStep     = math.Pi / 24
)

// Discrete zoom levels and time scales.
var (
	zoomLevels = []float64{0.25, 0.5, 0.75, 1.0, 1.5, 2.0, 3.0}
	timeScales = []float64{1, 10, 60, 600}
)

type (
	tickMsg time.Time

	viewLoadedMsg struct {
		view *tracker.GroupView
		err  error
	}
)

// Model is the root Bubble Tea model.
type Model struct {
	src   Source
	group string
	ctx   context.Context

	frame    *tracker.FrameState
	err      error
	lastTick time.Time
	lastLoad time.Time
	loading  bool

	width, height int
	cam           camera
	zoomIdx       int
	speedIdx      int
	selected      int
	paused        bool
	showPath      bool
	showMarkers   bool
}

// New creates a model animating group.
func New(ctx context.Context, src Source, group string) Model {
	return Model{
		src:         src,
		group:       group,
		ctx:         ctx,
		cam:         camera{pitch: math.Pi / 12, zoom: 1},
		zoomIdx:     3, // 1.0
		speedIdx:    2, // 60x
		showPath:    true,
		showMarkers: true,
		loading:     true,
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) loadCmd() tea.Cmd {
	ctx, src, group := m.ctx, m.src, m.group
	return func() tea.Msg {
		v, err := src.View(ctx, group)
		return viewLoadedMsg{view: v, err: err}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), tickCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case viewLoadedMsg:
		m.loading = false
		m.lastLoad = time.Now()
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		if m.frame == nil || m.frame.Stale(msg.view) {
			var st *tracker.FrameState
			var err error
			if m.frame == nil {
				st, err = m.src.NewFrame(msg.view, 0)
			} else {
				st, err = m.src.Rebase(m.ctx, m.frame, msg.view)
			}
			if err != nil {
				m.err = err
				return m, nil
			}
			m.frame = st
			if m.selected >= len(st.Params) {
				m.selected = 0
			}
		}

	case tickMsg:
		now := time.Time(msg)
		cmds := []tea.Cmd{tickCmd()}
		if m.frame != nil && !m.paused && !m.lastTick.IsZero() {
			dt := now.Sub(m.lastTick).Seconds() * timeScales[m.speedIdx]
			if err := m.src.Tick(m.ctx, m.frame, dt); err != nil {
				m.err = err
			}
		}
		m.lastTick = now
		if !m.loading && now.Sub(m.lastLoad) >= reloadInterval {
			m.loading = true
			cmds = append(cmds, m.loadCmd())
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "left", "h":
		m.cam.yaw -= rotateStep
	case "right", "l":
		m.cam.yaw += rotateStep
	case "up", "k":
		m.cam.pitch = math.Min(m.cam.pitch+rotateStep, math.Pi/2)
	case "down", "j":
		m.cam.pitch = math.Max(m.cam.pitch-rotateStep, -math.Pi/2)
	case "+", "=":
		if m.zoomIdx < len(zoomLevels)-1 {
			m.zoomIdx++
		}
	case "-":
		if m.zoomIdx > 0 {
			m.zoomIdx--
		}
	case "n", "tab":
		m.selectNext(1)
	case "N", "shift+tab":
		m.selectNext(-1)
	case " ":
		m.paused = !m.paused
	case "f":
		m.speedIdx = (m.speedIdx + 1) % len(timeScales)
	case "p":
		m.showPath = !m.showPath
	case "m":
		m.showMarkers = !m.showMarkers
	case "r":
		if !m.loading {
			m.loading = true
			return m, m.loadCmd()
		}
	}
	m.cam.zoom = zoomLevels[m.zoomIdx]
	return m, nil
}

func (m *Model) selectNext(step int) {
	if m.frame == nil || len(m.frame.Params) == 0 {
		return
	}
	n := len(m.frame.Params)
	m.selected = ((m.selected+step)%n + n) % n
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "starting…"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')

	switch {
	case m.err != nil:
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
	case m.frame == nil:
		b.WriteString(dimStyle.Render("loading " + m.group + "…"))
	default:
		b.WriteString(m.renderGlobe(m.width, max(m.height-5, 4)))
		b.WriteByte('\n')
		b.WriteString(m.renderSelection())
	}

	b.WriteByte('\n')
	b.WriteString(dimStyle.Render("←→↑↓ rotate  +/- zoom  n/N select  space pause  f speed  p path  m markers  r reload  q quit"))
	return b.String()
}

func (m Model) renderHeader() string {
	parts := []string{titleStyle.Render("orbitview"), m.group}
	if m.frame != nil {
		v := m.frame.View()
		parts = append(parts,
			fmt.Sprintf("%d objects", len(v.Objects)),
			fmt.Sprintf("%d rejected", len(v.Rejected)),
			"t+"+formatSimTime(m.frame.SimSeconds),
		)
	}
	speed := fmt.Sprintf("%gx", timeScales[m.speedIdx])
	if m.paused {
		speed = "paused"
	}
	parts = append(parts, accentStyle.Render(speed))
	return strings.Join(parts, dimStyle.Render(" │ "))
}

func (m Model) renderGlobe(w, h int) string {
	st := m.frame
	c := newCanvas(w, h, m.cam, st.DisplayRadius)
	c.drawGlobe()

	if m.showMarkers {
		for _, mk := range m.src.Markers() {
			c.plot(mk.Position, '▲', cellMarker)
		}
	}

	v := st.View()
	if m.showPath && m.selected < len(v.Objects) {
		if path, err := m.src.OrbitPath(v, v.Objects[m.selected].CatalogID, 0, st.DisplayRadius); err == nil {
			c.drawPath(path)
		}
	}

	for i, p := range st.Positions {
		if i == m.selected {
			c.plot(p, '◉', cellSelected)
			continue
		}
		c.plot(p, '•', cellObject)
	}
	return c.String()
}

func (m Model) renderSelection() string {
	v := m.frame.View()
	if m.selected >= len(v.Objects) {
		return dimStyle.Render("no objects")
	}
	obj := v.Objects[m.selected]
	p := m.frame.Params[m.selected]
	lat, lon := orbit.SubPoint(p)
	return fmt.Sprintf("%s %s  alt %.0f km  inc %.1f°  lat %.1f° lon %.1f°  phase %.1f°",
		accentStyle.Render(obj.Name),
		dimStyle.Render(fmt.Sprintf("#%d", obj.CatalogID)),
		obj.AltitudeKm,
		orbit.Degrees(p.Inclination),
		lat, lon,
		orbit.Degrees(p.Phase),
	)
}

func formatSimTime(s float64) string {
	d := time.Duration(s * float64(time.Second)).Round(time.Second)
	return d.String()
}
