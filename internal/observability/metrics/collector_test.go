package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRenderCountsAttempts(t *testing.T) {
	c := New()
	c.ObserveAttempt("/user/login", "POST", 500, 120*time.Millisecond)
	c.ObserveAttempt("/user/login", "POST", 200, 80*time.Millisecond)
	c.ObserveAttempt("/tasks/", "GET", 0, 40*time.Second)
	c.ObserveExhausted("/tasks/", "GET")
	c.ObserveIdentity("completed")
	c.ObserveTask(true)
	c.ObserveTask(false)

	out := c.Render()
	for _, want := range []string{
		`rewardpilot_http_attempts_total{endpoint="/user/login",method="POST",code="500"} 1`,
		`rewardpilot_http_attempts_total{endpoint="/tasks/",method="GET",code="transport_error"} 1`,
		`rewardpilot_http_retries_exhausted_total{endpoint="/tasks/",method="GET"} 1`,
		`rewardpilot_http_attempt_duration_seconds_bucket{endpoint="/user/login",method="POST",le="0.1"} 1`,
		`rewardpilot_http_attempt_duration_seconds_bucket{endpoint="/tasks/",method="GET",le="30"} 0`,
		`rewardpilot_http_attempt_duration_seconds_count{endpoint="/tasks/",method="GET"} 1`,
		`rewardpilot_identities_total{outcome="completed"} 1`,
		`rewardpilot_tasks_total{result="failed"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWriteFile(t *testing.T) {
	c := New()
	c.ObserveIdentity("failed")
	path := filepath.Join(t.TempDir(), "out", "metrics.prom")
	if err := c.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `outcome="failed"`) {
		t.Fatalf("unexpected content: %s", data)
	}
}
