// Package statsd emits session metrics over UDP using the StatsD line protocol
// with DogStatsD-style tags.
package statsd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/target/libsession/internal/ports"
)

// DefaultPrefix is applied when Config.Prefix is empty.
const DefaultPrefix = "libsession"

const dialTimeout = 5 * time.Second

// Metric type suffixes of the line protocol.
const (
	kindCount  = "c"
	kindGauge  = "g"
	kindTiming = "ms"
)

var nameReplacer = strings.NewReplacer(" ", "_", "/", "_", ":", "_", "|", "_", "#", "_")

// Config describes how to connect to a StatsD-compatible sink.
type Config struct {
	Enabled bool
	Address string
	Prefix  string
	Logger  *slog.Logger
	// GlobalTags are added to every metric; per-call tags win on conflict.
	GlobalTags map[string]string
}

// Client is a ports.MetricsSink writing one datagram per metric.
// It is safe for concurrent use; a nil, disabled or closed Client drops every metric.
type Client struct {
	prefix string
	global map[string]string
	logger *slog.Logger

	mu sync.Mutex
	w  io.WriteCloser
}

var _ ports.MetricsSink = (*Client)(nil)

// NewClient dials the configured StatsD endpoint. When metrics are disabled
// or no address is set it returns a Client that drops everything.
func NewClient(cfg Config) (*Client, error) {
	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return newClient(nil, cfg), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	return newClient(conn, cfg), nil
}

func newClient(w io.WriteCloser, cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Client{
		prefix: prefix,
		global: cleanTags(cfg.GlobalTags),
		logger: logger.With("component", "statsd"),
		w:      w,
	}
}

// Enabled reports whether metrics are being sent.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w != nil
}

// Count adds value to a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.send(name, strconv.FormatInt(value, 10), kindCount, tags)
}

// Gauge sets a gauge.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.send(name, strconv.FormatFloat(value, 'f', -1, 64), kindGauge, tags)
}

// Timing records a duration in fractional milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := float64(value) / float64(time.Millisecond)
	c.send(name, strconv.FormatFloat(ms, 'f', -1, 64), kindTiming, tags)
}

// Close stops emission and releases the connection. It is idempotent.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return nil
	}
	err := c.w.Close()
	c.w = nil
	return err
}

func (c *Client) send(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line, ok := c.format(name, value, kind, tags)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return
	}
	if _, err := io.WriteString(c.w, line); err != nil {
		c.logger.Debug("statsd write failed", "metric", name, "error", err)
	}
}

// format renders prefix.name:value|kind|#k:v,... with tags sorted by key.
func (c *Client) format(name, value, kind string, tags map[string]string) (string, bool) {
	metric := normalizeName(name)
	if metric == "" {
		return "", false
	}

	var b strings.Builder
	b.WriteString(c.prefix)
	b.WriteByte('.')
	b.WriteString(metric)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)

	merged := c.global
	if len(tags) > 0 {
		merged = maps.Clone(c.global)
		maps.Copy(merged, cleanTags(tags))
	}
	for i, k := range slices.Sorted(maps.Keys(merged)) {
		if i == 0 {
			b.WriteString("|#")
		} else {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(merged[k])
	}
	return b.String(), true
}

// normalizeName replaces protocol separators and collapses empty segments.
func normalizeName(name string) string {
	parts := strings.Split(nameReplacer.Replace(strings.TrimSpace(name)), ".")
	parts = slices.DeleteFunc(parts, func(p string) bool { return p == "" })
	return strings.Join(parts, ".")
}

func cleanTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		k = nameReplacer.Replace(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out[k] = strings.NewReplacer("|", "_", ",", "_").Replace(strings.TrimSpace(v))
	}
	return out
}
