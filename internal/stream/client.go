package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// writeTimeout bounds each write on a long-lived stream.
const writeTimeout = 30 * time.Second

// client writes SSE events to one connection and counts what it sent.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// sendJSON marshals v and sends it as one data event.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.sendData(data)
}

// sendData sends an encoded payload as "data: ...\n\n".
func (c *client) sendData(data []byte) error {
	if err := c.emit("data", "data: %s\n\n", data); err != nil {
		return err
	}
	c.messagesSent++
	return nil
}

// sendRetry sets the browser's reconnect delay.
func (c *client) sendRetry(d time.Duration) error {
	return c.emit("retry", "retry: %d\n\n", d.Milliseconds())
}

// sendKeepalive sends an empty comment.
func (c *client) sendKeepalive() error {
	return c.emit("keepalive", ":\n\n")
}

func (c *client) emit(kind, format string, args ...any) error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "remote_ip", c.ip, "error", err)
	}
	n, err := fmt.Fprintf(c.w, format, args...)
	c.bytesSent += int64(n)
	if err != nil {
		return fmt.Errorf("%s write: %w", kind, err)
	}
	c.flusher.Flush()
	return nil
}
