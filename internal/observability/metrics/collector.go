// Package metrics keeps in-process counters for outbound platform calls and
// per-identity outcomes, rendered in the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type attemptKey struct {
	endpoint string
	method   string
	code     string
}

type latencyKey struct {
	endpoint string
	method   string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// Collector aggregates metrics. The zero value is not usable; use New.
type Collector struct {
	mu         sync.Mutex
	attempts   map[attemptKey]uint64
	exhausted  map[latencyKey]uint64
	latency    map[latencyKey]*histogram
	identities map[string]uint64
	tasks      map[string]uint64
}

// New returns an empty collector.
func New() *Collector {
	return &Collector{
		attempts:   make(map[attemptKey]uint64),
		exhausted:  make(map[latencyKey]uint64),
		latency:    make(map[latencyKey]*histogram),
		identities: make(map[string]uint64),
		tasks:      make(map[string]uint64),
	}
}

// Default is the process-wide collector.
var Default = New()

// ObserveAttempt records one HTTP attempt. status is 0 for transport errors.
func (c *Collector) ObserveAttempt(endpoint, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code := strconv.Itoa(status)
	if status == 0 {
		code = "transport_error"
	}
	c.attempts[attemptKey{endpoint: endpoint, method: method, code: code}]++

	key := latencyKey{endpoint: endpoint, method: method}
	hist := c.latency[key]
	if hist == nil {
		hist = newHistogram()
		c.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveExhausted records a logical call that ran out of attempts.
func (c *Collector) ObserveExhausted(endpoint, method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exhausted[latencyKey{endpoint: endpoint, method: method}]++
}

// ObserveIdentity records the terminal outcome of one identity pipeline.
func (c *Collector) ObserveIdentity(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identities[outcome]++
}

// ObserveTask records one task completion attempt.
func (c *Collector) ObserveTask(completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if completed {
		c.tasks["completed"]++
	} else {
		c.tasks["failed"]++
	}
}

func newHistogram() *histogram {
	buckets := []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	return &histogram{buckets: buckets, counts: make([]uint64, len(buckets))}
}

// observe keeps cumulative bucket counts; values above the last bound only
// show up in count, which doubles as the +Inf bucket.
func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
}

// Render returns the exposition text.
func (c *Collector) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder

	attemptKeys := make([]attemptKey, 0, len(c.attempts))
	for key := range c.attempts {
		attemptKeys = append(attemptKeys, key)
	}
	sort.Slice(attemptKeys, func(i, j int) bool {
		a, z := attemptKeys[i], attemptKeys[j]
		if a.endpoint != z.endpoint {
			return a.endpoint < z.endpoint
		}
		if a.method != z.method {
			return a.method < z.method
		}
		return a.code < z.code
	})
	b.WriteString("# HELP rewardpilot_http_attempts_total Outbound HTTP attempts by endpoint and result.\n")
	b.WriteString("# TYPE rewardpilot_http_attempts_total counter\n")
	for _, key := range attemptKeys {
		fmt.Fprintf(&b, "rewardpilot_http_attempts_total{endpoint=\"%s\",method=\"%s\",code=\"%s\"} %d\n",
			escape(key.endpoint), escape(key.method), escape(key.code), c.attempts[key])
	}

	exhaustedKeys := sortedLatencyKeys(c.exhausted)
	b.WriteString("# HELP rewardpilot_http_retries_exhausted_total Logical calls that used every attempt.\n")
	b.WriteString("# TYPE rewardpilot_http_retries_exhausted_total counter\n")
	for _, key := range exhaustedKeys {
		fmt.Fprintf(&b, "rewardpilot_http_retries_exhausted_total{endpoint=\"%s\",method=\"%s\"} %d\n",
			escape(key.endpoint), escape(key.method), c.exhausted[key])
	}

	latencyKeys := make([]latencyKey, 0, len(c.latency))
	for key := range c.latency {
		latencyKeys = append(latencyKeys, key)
	}
	sortLatency(latencyKeys)
	b.WriteString("# HELP rewardpilot_http_attempt_duration_seconds Outbound HTTP attempt duration in seconds.\n")
	b.WriteString("# TYPE rewardpilot_http_attempt_duration_seconds histogram\n")
	for _, key := range latencyKeys {
		hist := c.latency[key]
		labels := fmt.Sprintf("endpoint=\"%s\",method=\"%s\"", escape(key.endpoint), escape(key.method))
		for idx, bound := range hist.buckets {
			fmt.Fprintf(&b, "rewardpilot_http_attempt_duration_seconds_bucket{%s,le=\"%s\"} %d\n", labels, formatFloat(bound), hist.counts[idx])
		}
		fmt.Fprintf(&b, "rewardpilot_http_attempt_duration_seconds_bucket{%s,le=\"+Inf\"} %d\n", labels, hist.count)
		fmt.Fprintf(&b, "rewardpilot_http_attempt_duration_seconds_sum{%s} %s\n", labels, formatFloat(hist.sum))
		fmt.Fprintf(&b, "rewardpilot_http_attempt_duration_seconds_count{%s} %d\n", labels, hist.count)
	}

	writeCounterMap(&b, "rewardpilot_identities_total", "Processed identities by outcome.", "outcome", c.identities)
	writeCounterMap(&b, "rewardpilot_tasks_total", "Task completion attempts by result.", "result", c.tasks)
	return b.String()
}

// WriteFile dumps the exposition text to path, creating parent directories.
func (c *Collector) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	return os.WriteFile(path, []byte(c.Render()), 0o644)
}

func writeCounterMap(b *strings.Builder, name, help, label string, values map[string]uint64) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	for _, key := range keys {
		fmt.Fprintf(b, "%s{%s=\"%s\"} %d\n", name, label, escape(key), values[key])
	}
}

func sortedLatencyKeys(m map[latencyKey]uint64) []latencyKey {
	keys := make([]latencyKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sortLatency(keys)
	return keys
}

func sortLatency(keys []latencyKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].endpoint == keys[j].endpoint {
			return keys[i].method < keys[j].method
		}
		return keys[i].endpoint < keys[j].endpoint
	})
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return strings.ReplaceAll(value, "\n", "")
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
