// Package stream implements Server-Sent Events (SSE) streaming of animated
// object positions. Clients connect via GET /api/v1/stream/positions and
// receive a frame every interval, advanced by the real time elapsed since
// the previous frame.
//
// SSE message format:
//
//	data: {"type":"frame","seq":42,"sim_seconds":4.2,"pos":[{"id":25544,"p":[x,y,z]}]}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","group":"stations","dataset_fetched_at":"...","objects":12,"rejected":1}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval. A new
// metadata message is sent whenever the group dataset changes mid-stream.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/httputil"
	"github.com/star/orbitview/internal/metrics"
	"github.com/star/orbitview/internal/tracker"
)

// Interval bounds for the frame rate.
const (
	DefaultInterval = 100 * time.Millisecond
	MinInterval     = 16 * time.Millisecond
	MaxInterval     = 10 * time.Second
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	Interval           time.Duration // Default frame interval (default: 100ms).
	KeepaliveInterval  time.Duration // Keep-alive and dataset check interval (default: 30s).
	TrustProxy         bool          // Honour X-Forwarded-For when limiting.
}

// Animator builds and advances frames for a group.
type Animator interface {
	View(ctx context.Context, group string) (*tracker.GroupView, error)
	NewFrame(v *tracker.GroupView, displayRadius float64) (*tracker.FrameState, error)
	Tick(ctx context.Context, st *tracker.FrameState, dt float64) error
	Rebase(ctx context.Context, prev *tracker.FrameState, v *tracker.GroupView) (*tracker.FrameState, error)
}

// Handler manages SSE streaming connections.
type Handler struct {
	animator Animator
	config   Config
	limiter  *streamLimiter
	logger   *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(animator Animator, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		animator: animator,
		config:   config,
		limiter:  newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:   logger,
	}
}

// Active returns the number of open streams.
func (h *Handler) Active() int {
	return h.limiter.active()
}

type streamParams struct {
	group    string
	interval time.Duration
	radius   float64
}

// parseParams validates the query string. interval is in milliseconds.
func (h *Handler) parseParams(r *http.Request) (streamParams, string) {
	q := r.URL.Query()
	p := streamParams{
		group:    elements.DefaultGroup,
		interval: h.config.Interval,
	}

	if v := q.Get("group"); v != "" {
		if !elements.IsKnownGroup(v) {
			return p, "unknown group " + strconv.Quote(v)
		}
		p.group = v
	}

	if v := q.Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		d := time.Duration(n) * time.Millisecond
		if err != nil || d < MinInterval || d > MaxInterval {
			return p, "invalid interval parameter, must be 16-10000 milliseconds"
		}
		p.interval = d
	}

	if v := q.Get("radius"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !(f > 0) || f > 1e6 {
			return p, "invalid radius parameter, must be a positive number"
		}
		p.radius = f
	}

	return p, ""
}

// HandlePositions serves the SSE position stream.
// GET /api/v1/stream/positions?group=stations&interval=100&radius=5
func (h *Handler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	params, msg := h.parseParams(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, err := h.limiter.acquire(ip)
	if err != nil {
		h.logger.Warn("stream rejected",
			"remote_ip", ip,
			"reason", err,
			"client_streams", h.limiter.count(ip),
			"open_streams", h.limiter.active(),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}
	defer release()

	ctx := r.Context()
	view, err := h.animator.View(ctx, params.group)
	if err != nil {
		h.logger.Warn("stream group unavailable", "group", params.group, "remote_ip", ip, "error", err)
		writeError(w, http.StatusServiceUnavailable, "group data unavailable")
		return
	}
	st, err := h.animator.NewFrame(view, params.radius)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.StreamConnected()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"group", params.group,
		"interval_ms", params.interval.Milliseconds(),
	)

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		ip:      ip,
		logger:  h.logger,
	}

	defer func() {
		metrics.StreamDisconnected()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"group", params.group,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's WriteTimeout; each write extends its own deadline.
	if err := c.rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	if err := c.sendRetry(time.Duration(3000+rand.Intn(4000)) * time.Millisecond); err != nil {
		return
	}
	if err := c.sendJSON(buildMetadataMessage(view)); err != nil {
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(params.interval)
	defer ticker.Stop()
	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now

			if err := h.animator.Tick(ctx, st, dt); err != nil {
				return
			}
			data, err := json.Marshal(buildFrameMessage(st))
			if err != nil {
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}
			if err := c.sendData(data); err != nil {
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			metrics.RecordStreamFrame()

		case <-keepaliveTicker.C:
			// Rebuild the frame when the dataset has been replaced.
			if v, err := h.animator.View(ctx, params.group); err == nil && st.Stale(v) {
				next, err := h.animator.Rebase(ctx, st, v)
				if err == nil {
					st = next
					if err := c.sendJSON(buildMetadataMessage(v)); err != nil {
						h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
						return
					}
					continue
				}
			}
			if err := c.sendKeepalive(); err != nil {
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func buildMetadataMessage(v *tracker.GroupView) metadataMessage {
	return metadataMessage{
		Type:             "metadata",
		Group:            v.Group,
		DatasetFetchedAt: v.FetchedAt.UTC().Format(time.RFC3339),
		Objects:          len(v.Objects),
		Rejected:         len(v.Rejected),
	}
}

// buildFrameMessage formats the current frame positions. Objects are listed
// in view order.
func buildFrameMessage(st *tracker.FrameState) frameMessage {
	objs := st.View().Objects
	pos := make([]posPayload, len(st.Positions))
	for i, p := range st.Positions {
		pos[i] = posPayload{
			ID: objs[i].CatalogID,
			P:  [3]float64{p.X, p.Y, p.Z},
		}
	}
	return frameMessage{
		Type:       "frame",
		Seq:        st.Seq,
		SimSeconds: st.SimSeconds,
		Pos:        pos,
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SSE message payload types.

type metadataMessage struct {
	Type             string `json:"type"`
	Group            string `json:"group"`
	DatasetFetchedAt string `json:"dataset_fetched_at"`
	Objects          int    `json:"objects"`
	Rejected         int    `json:"rejected"`
}

type frameMessage struct {
	Type       string       `json:"type"`
	Seq        uint64       `json:"seq"`
	SimSeconds float64      `json:"sim_seconds"`
	Pos        []posPayload `json:"pos"`
}

type posPayload struct {
	ID int        `json:"id"`
	P  [3]float64 `json:"p"`
}
